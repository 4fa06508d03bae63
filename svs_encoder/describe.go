package svs_encoder

import (
	"strconv"
	"strings"
)

const (
	aperioHeader = "Aperio Image Library v11.1.9"
	vendorTag    = "Mirax Digital Slide"
)

// Describe builds the ImageDescription of layer l in a pyramid whose native
// layer is nativeWidth x nativeHeight.
//
//	native:    <hdr>\nWxH (TxT) JPEG/RGB Q=q;Mirax Digital Slide|k = v...
//	thumbnail: <hdr>\nWxH -> wxh - ;Mirax Digital Slide|k = v...
//	sub-layer: <hdr>\nWxH (TxT) -> wxh JPEG/RGB Q=q
func Describe(l Layer, nativeWidth, nativeHeight int) string {
	var sb strings.Builder
	sb.WriteString(aperioHeader)
	sb.WriteByte('\n')
	writeSize(&sb, nativeWidth, nativeHeight)

	if l.Kind != KindThumbnail {
		sb.WriteString(" (")
		writeSize(&sb, l.TileWidth, l.TileHeight)
		sb.WriteString(")")
	}
	if l.Kind != KindNative {
		sb.WriteString(" -> ")
		writeSize(&sb, l.Width, l.Height)
	}

	if l.Kind == KindThumbnail {
		sb.WriteString(" - ")
	} else {
		sb.WriteString(" JPEG/RGB ")
		if l.Quality != nil {
			sb.WriteString("Q=")
			sb.WriteString(strconv.Itoa(*l.Quality))
		}
	}

	if l.Kind != KindSub {
		sb.WriteString(";")
		sb.WriteString(vendorTag)
		for _, k := range l.Metadata.SortedKeys() {
			sb.WriteString("|")
			sb.WriteString(k)
			sb.WriteString(" = ")
			sb.WriteString(l.Metadata[k])
		}
	}
	return sb.String()
}

func writeSize(sb *strings.Builder, w, h int) {
	sb.WriteString(strconv.Itoa(w))
	sb.WriteByte('x')
	sb.WriteString(strconv.Itoa(h))
}
