package printer

func PayloadSelect(startPrint bool) map[string]any {
	return map[string]any{"command": "select", "print": startPrint}
}

func PayloadJobStart() map[string]any {
	return map[string]any{"command": "start"}
}

func PayloadJob(cmd JobCommand) map[string]any {
	switch cmd {
	case JobPause:
		return map[string]any{"command": "pause", "action": "pause"}
	case JobResume:
		return map[string]any{"command": "pause", "action": "resume"}
	default:
		return map[string]any{"command": "cancel"}
	}
}

func PayloadToolTarget(tool string, target float64) map[string]any {
	return map[string]any{
		"command": "target",
		"targets": map[string]any{tool: target},
	}
}

func PayloadTarget(target float64) map[string]any {
	return map[string]any{"command": "target", "target": target}
}

func PayloadPassiveLogin() map[string]any {
	return map[string]any{"passive": true}
}
