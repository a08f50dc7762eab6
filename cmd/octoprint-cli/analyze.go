package main

import (
	"fmt"
	"strconv"

	"octoprint-cli/internal/gcode"
	"octoprint-cli/internal/output"
)

// cmdAnalyze works on a local file only and needs no configuration.
func cmdAnalyze(a *app, args []string) int {
	if len(args) != 1 {
		return a.usageErr("analyze", nil)
	}
	md, err := gcode.Analyze(args[0])
	if err != nil {
		return a.errExit(err)
	}
	switch a.format() {
	case output.JSON:
		return a.exitOnErr(output.WriteJSON(a.stdout, md))
	case output.Plain:
		return a.exitOnErr(output.WritePlainKV(a.stdout, metadataKV(md)))
	default:
		writeMetadata(a, md)
		return 0
	}
}

func metadataKV(md gcode.Metadata) map[string]string {
	kv := map[string]string{
		"file":                md.File,
		"size_bytes":          strconv.FormatInt(md.SizeBytes, 10),
		"slicer":              md.Slicer,
		"layers":              optInt(md.Layers),
		"estimated_seconds":   optInt(md.EstimatedSeconds),
		"filament_length_m":   optFloatPrec(md.FilamentLengthM, 2),
		"filament_volume_cm3": optFloatPrec(md.FilamentVolumeCM3, 2),
		"filament_weight_g":   optFloatPrec(md.FilamentWeightG, 2),
		"bed_temp":            optFloat(md.BedTemp),
		"hotend_temp":         optFloat(md.HotendTemp),
		"layer_height":        optFloatPrec(md.LayerHeight, 2),
		"first_layer_height":  optFloatPrec(md.FirstLayerHeight, 2),
		"malformed":           strconv.Itoa(len(md.Malformed)),
	}
	if md.Slicer == "" {
		kv["slicer"] = unknown
	}
	if bb := md.BoundingBox; bb != nil {
		kv["bbox_x"] = rangeText(bb.X)
		kv["bbox_y"] = rangeText(bb.Y)
		kv["bbox_z"] = rangeText(bb.Z)
	}
	return kv
}

func writeMetadata(a *app, md gcode.Metadata) {
	pal := a.palette()
	row := func(label, value string) {
		if value == unknown {
			value = pal.Dim(value)
		}
		fmt.Fprintf(a.stdout, "%-20s %s\n", label+":", value)
	}
	fmt.Fprintln(a.stdout, pal.Bold(md.File))
	row("Size", output.Size(md.SizeBytes))
	slicer := md.Slicer
	if slicer == "" {
		slicer = unknown
	}
	row("Slicer", slicer)
	row("Layers", optInt(md.Layers))
	est := unknown
	if d, ok := md.EstimatedTime(); ok {
		est = output.Duration(d)
	}
	row("Estimated time", est)
	row("Filament", withUnit(optFloatPrec(md.FilamentLengthM, 2), "m"))
	row("Filament volume", withUnit(optFloatPrec(md.FilamentVolumeCM3, 2), "cm³"))
	row("Filament weight", withUnit(optFloatPrec(md.FilamentWeightG, 2), "g"))
	row("Bed", withUnit(optFloat(md.BedTemp), "°C"))
	row("Hotend", withUnit(optFloat(md.HotendTemp), "°C"))
	row("Layer height", withUnit(optFloatPrec(md.LayerHeight, 2), "mm"))
	row("First layer height", withUnit(optFloatPrec(md.FirstLayerHeight, 2), "mm"))
	if bb := md.BoundingBox; bb != nil {
		row("Bounding box X", withUnit(rangeText(bb.X), "mm"))
		row("Bounding box Y", withUnit(rangeText(bb.Y), "mm"))
		row("Bounding box Z", withUnit(rangeText(bb.Z), "mm"))
	} else {
		row("Bounding box", unknown)
	}
	for _, m := range md.Malformed {
		fmt.Fprintln(a.stdout, pal.Warn("unparsed "+m))
	}
}

func optFloatPrec(v *float64, prec int) string {
	if v == nil {
		return unknown
	}
	return strconv.FormatFloat(*v, 'f', prec, 64)
}

func withUnit(v, unit string) string {
	if v == unknown {
		return v
	}
	return v + " " + unit
}

func rangeText(r *gcode.Range) string {
	if r == nil {
		return unknown
	}
	return fmt.Sprintf("%.2f..%.2f", r.Min, r.Max)
}
