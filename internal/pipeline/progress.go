package pipeline

import "log/slog"

// ProgressCallback receives page-level progress during document analysis.
type ProgressCallback interface {
	// OnStart is called when analysis begins with the number of pages.
	OnStart(totalPages int)

	// OnPage is called after each page completes.
	OnPage(pageNumber, completed, totalPages int)

	// OnComplete is called when the document is finished.
	OnComplete()
}

// NoOpProgressCallback implements ProgressCallback but does nothing.
type NoOpProgressCallback struct{}

func (NoOpProgressCallback) OnStart(totalPages int)                    {}
func (NoOpProgressCallback) OnPage(pageNumber, completed, total int)   {}
func (NoOpProgressCallback) OnComplete()                               {}

// LogProgressCallback reports page progress through slog.
type LogProgressCallback struct{}

func (LogProgressCallback) OnStart(totalPages int) {
	slog.Info("starting document analysis", "pages", totalPages)
}

func (LogProgressCallback) OnPage(pageNumber, completed, total int) {
	slog.Info("page analyzed", "page", pageNumber, "completed", completed, "total", total)
}

func (LogProgressCallback) OnComplete() {
	slog.Info("document analysis complete")
}
