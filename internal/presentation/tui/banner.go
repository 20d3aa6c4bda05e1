package tui

import (
	"fmt"
	"io"

	"github.com/muesli/termenv"
)

// PrintBanner writes the proxyshape banner.
func PrintBanner(w io.Writer) {
	p := termenv.ColorProfile()
	lines := []struct{ text, color string }{
		{"  ___                     _                    ", "#34d399"},
		{" | _ \\_ _ _____ ___  _ __| |_  __ _ _ __  ___  ", "#2dd4bf"},
		{" |  _/ '_/ _ \\ \\ / || (_-< ' \\/ _` | '_ \\/ -_) ", "#22d3ee"},
		{" |_| |_| \\___/_\\_\\\\_, /__/_||_\\__,_| .__/\\___| ", "#38bdf8"},
		{"                  |__/             |_|         ", "#60a5fa"},
	}

	fmt.Fprintln(w)
	for _, l := range lines {
		fmt.Fprintln(w, termenv.String(l.text).Foreground(p.Color(l.color)))
	}
	fmt.Fprintln(w)
}
