package telemetry

import (
	"fmt"
	"log/slog"
)

// BookmarkType identifies the type of bookmark.
type BookmarkType string

const (
	BookmarkGrowthSpurt    BookmarkType = "growth_spurt"
	BookmarkDroughtOnset   BookmarkType = "drought_onset"
	BookmarkStarchDepleted BookmarkType = "starch_depleted"
	BookmarkSteadyGrowth   BookmarkType = "steady_growth"
)

// Bookmark represents an automatically triggered bookmark.
type Bookmark struct {
	Type        BookmarkType `csv:"type"`
	Step        int64        `csv:"step"`
	Hour        float64      `csv:"hour"`
	Description string       `csv:"description"`
}

// LogBookmark logs the bookmark using slog.
func (b Bookmark) LogBookmark() {
	slog.Info("bookmark",
		"type", string(b.Type),
		"step", b.Step,
		"description", b.Description,
	)
}

// BookmarkDetector detects interesting moments in the simulation.
type BookmarkDetector struct {
	// Rolling history (circular buffer)
	history     []WindowStats
	historySize int
	historyIdx  int
	historyFull bool

	// State tracking
	recentStarchPeak   float64 // peak starch pool in recent history
	steadyWindowsCount int     // consecutive windows with steady growth
}

// NewBookmarkDetector creates a detector with the given history size.
func NewBookmarkDetector(historySize int) *BookmarkDetector {
	if historySize < 5 {
		historySize = 5 // minimum for steady growth detection
	}
	return &BookmarkDetector{
		history:     make([]WindowStats, historySize),
		historySize: historySize,
	}
}

// Check analyzes the latest stats and returns any triggered bookmarks.
func (bd *BookmarkDetector) Check(stats WindowStats) []Bookmark {
	var bookmarks []Bookmark

	if bd.historyFull || bd.historyIdx > 0 {
		// Growth spurt: window growth > 2x rolling average
		if b := bd.checkGrowthSpurt(stats); b != nil {
			bookmarks = append(bookmarks, *b)
		}

		// Drought onset: first window with a water shortfall
		if b := bd.checkDroughtOnset(stats); b != nil {
			bookmarks = append(bookmarks, *b)
		}

		// Starch depleted: pool fell below 10% of its recent peak
		if b := bd.checkStarchDepleted(stats); b != nil {
			bookmarks = append(bookmarks, *b)
		}

		// Steady growth: low variance in growth rate over 5+ windows
		if b := bd.checkSteadyGrowth(stats); b != nil {
			bookmarks = append(bookmarks, *b)
		}
	}

	// Update history
	bd.addToHistory(stats)

	if stats.Starch > bd.recentStarchPeak {
		bd.recentStarchPeak = stats.Starch
	}

	return bookmarks
}

func (bd *BookmarkDetector) addToHistory(stats WindowStats) {
	bd.history[bd.historyIdx] = stats
	bd.historyIdx = (bd.historyIdx + 1) % bd.historySize
	if bd.historyIdx == 0 {
		bd.historyFull = true
	}
}

// getHistory returns the stored windows, oldest first.
func (bd *BookmarkDetector) getHistory() []WindowStats {
	if !bd.historyFull {
		return bd.history[:bd.historyIdx]
	}
	out := make([]WindowStats, 0, bd.historySize)
	out = append(out, bd.history[bd.historyIdx:]...)
	return append(out, bd.history[:bd.historyIdx]...)
}

func (bd *BookmarkDetector) last() (WindowStats, bool) {
	if !bd.historyFull && bd.historyIdx == 0 {
		return WindowStats{}, false
	}
	return bd.history[(bd.historyIdx+bd.historySize-1)%bd.historySize], true
}

func (bd *BookmarkDetector) checkGrowthSpurt(stats WindowStats) *Bookmark {
	history := bd.getHistory()
	if len(history) < 3 {
		return nil
	}

	var total float64
	for _, h := range history {
		total += h.TotalGrowth()
	}
	avg := total / float64(len(history))
	if avg <= 0 {
		return nil
	}

	current := stats.TotalGrowth()
	if current > avg*2.0 {
		return &Bookmark{
			Type:        BookmarkGrowthSpurt,
			Step:        stats.WindowEndStep,
			Hour:        stats.Hour,
			Description: fmt.Sprintf("Growth %.4gg is %.1fx average (%.4gg)", current, current/avg, avg),
		}
	}

	return nil
}

func (bd *BookmarkDetector) checkDroughtOnset(stats WindowStats) *Bookmark {
	prev, ok := bd.last()
	if !ok || stats.WaterShortfall <= 0 || prev.WaterShortfall > 0 {
		return nil
	}
	return &Bookmark{
		Type:        BookmarkDroughtOnset,
		Step:        stats.WindowEndStep,
		Hour:        stats.Hour,
		Description: fmt.Sprintf("Water demand exceeded supply by %.0f umol", stats.WaterShortfall),
	}
}

func (bd *BookmarkDetector) checkStarchDepleted(stats WindowStats) *Bookmark {
	if bd.recentStarchPeak <= 0 {
		return nil
	}

	if stats.Starch < bd.recentStarchPeak*0.1 {
		// Reset peak after triggering
		oldPeak := bd.recentStarchPeak
		bd.recentStarchPeak = stats.Starch

		return &Bookmark{
			Type:        BookmarkStarchDepleted,
			Step:        stats.WindowEndStep,
			Hour:        stats.Hour,
			Description: fmt.Sprintf("Starch fell from peak %.0f to %.0f umol", oldPeak, stats.Starch),
		}
	}

	return nil
}

func (bd *BookmarkDetector) checkSteadyGrowth(stats WindowStats) *Bookmark {
	if stats.GrowthRateMean <= 0 {
		bd.steadyWindowsCount = 0
		return nil
	}

	history := bd.getHistory()
	if len(history) < 4 {
		return nil
	}

	recent := history[len(history)-4:]
	var sum float64
	for _, h := range recent {
		sum += h.GrowthRateMean
	}
	mean := sum / 4

	var variance float64
	for _, h := range recent {
		d := h.GrowthRateMean - mean
		variance += d * d
	}
	variance /= 4

	if mean > 0 && variance/(mean*mean) < 0.04 { // CV^2 < 0.04 means CV < 0.2
		bd.steadyWindowsCount++
	} else {
		bd.steadyWindowsCount = 0
	}

	if bd.steadyWindowsCount == 5 { // trigger exactly once at 5 windows
		return &Bookmark{
			Type:        BookmarkSteadyGrowth,
			Step:        stats.WindowEndStep,
			Hour:        stats.Hour,
			Description: fmt.Sprintf("Steady growth at %.4g g/h over 5+ windows", stats.GrowthRateMean),
		}
	}

	return nil
}
