// Command blendtest renders the nine tile-blending weight masks as
// grayscale images for visual inspection.
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"flood-mapper/internal/blend"

	"gocv.io/x/gocv"
)

var names = [3][3]string{
	{"tl", "up", "tr"},
	{"le", "own", "ri"},
	{"bl", "do", "br"},
}

func main() {
	size := flag.Int("size", 224, "Tile edge length in pixels")
	outDir := flag.String("out", ".", "Output directory")
	flag.Parse()

	ws := blend.Weights(*size, *size)
	sum := gocv.NewMatWithSize(*size, *size, gocv.MatTypeCV8U)
	defer sum.Close()

	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			m := gocv.NewMatWithSize(*size, *size, gocv.MatTypeCV8U)
			total := 0.0
			for r := 0; r < *size; r++ {
				for c := 0; c < *size; c++ {
					v := ws.Masks[i][j].At(r, c)
					total += v
					m.SetUCharAt(r, c, uint8(v*255+0.5))
					sum.SetUCharAt(r, c, sum.GetUCharAt(r, c)+uint8(v*255+0.5))
				}
			}
			path := filepath.Join(*outDir, fmt.Sprintf("weights-%s.png", names[i][j]))
			if ok := gocv.IMWrite(path, m); !ok {
				fmt.Fprintf(os.Stderr, "cannot write %s\n", path)
				os.Exit(1)
			}
			fmt.Printf("%s\tmean %.4f\n", path, total/float64(*size**size))
			m.Close()
		}
	}

	// The mask sum should be flat white everywhere, modulo rounding.
	path := filepath.Join(*outDir, "weights-sum.png")
	if ok := gocv.IMWrite(path, sum); !ok {
		fmt.Fprintf(os.Stderr, "cannot write %s\n", path)
		os.Exit(1)
	}
	fmt.Println(path)
}
