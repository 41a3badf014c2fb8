package game

import (
	"fmt"
	"io"

	"github.com/dustin/go-humanize"

	"github.com/pthm-cable/sprout/components"
)

// logWriter is the destination for log output.
var logWriter io.Writer

// SetLogWriter sets the log output destination.
func SetLogWriter(w io.Writer) {
	logWriter = w
}

// Logf writes a formatted log message.
func Logf(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	if logWriter != nil {
		fmt.Fprintln(logWriter, msg)
	} else {
		fmt.Println(msg)
	}
}

// LogState writes a human-readable summary of the plant and soil.
func (g *Game) LogState() {
	s := g.Summary()

	day := int(s.Clock / 86400)
	hour := (s.Clock - float64(day)*86400) / 3600
	Logf("=== Step %s (day %d, %05.2fh) ===", humanize.Comma(s.Steps), day, hour)
	Logf("Biomass: %sg", humanize.FtoaWithDigits(s.TotalBiomass(), 4))
	for _, kind := range components.OrganKinds {
		Logf("  %-5s %sg (%d organs)", kind, humanize.FtoaWithDigits(s.Masses[kind], 4), g.organCount(kind))
	}
	Logf("Pools: starch %s, water %s, nitrate %s",
		humanize.SIWithDigits(s.Starch*1e-6, 2, "mol"),
		humanize.SIWithDigits(s.Water*1e-6, 2, "mol"),
		humanize.SIWithDigits(s.Nitrate*1e-6, 2, "mol"))
	Logf("Soil: water %s, nitrate %s",
		humanize.SIWithDigits(s.GridWater*1e-6, 2, "mol"),
		humanize.SIWithDigits(s.GridNitrate*1e-6, 2, "mol"))
	Logf("Roots: %d trees over %d cells", s.RootTrees, s.RootCells)
	Logf("")
}

func (g *Game) organCount(kind components.OrganKind) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.plant.Collection(kind).Len()
}
