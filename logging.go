package hexa

import (
	"log"
	"os"
)

// debugEnabled gates the high-volume scheduler trace. Warnings and recovery
// notices log unconditionally.
var debugEnabled = os.Getenv(EnvDebug) != ""

func debugf(format string, args ...interface{}) {
	if debugEnabled {
		log.Printf("DEBUG: "+format, args...)
	}
}

func warnf(format string, args ...interface{}) {
	log.Printf("WARNING: "+format, args...)
}
