package tui

import tea "github.com/charmbracelet/bubbletea"

// Page ids.
const (
	PageOverview = "overview"
	PageBrowse   = "browse"
	PagePipeline = "pipeline"
)

// Page represents a top-level screen in the TUI (overview, browse, pipeline).
type Page interface {
	ID() string
	Title() string
	Init() tea.Cmd
	Update(msg tea.Msg) (tea.Cmd, *PageNav)
	View(width, height int) string
}

// PageNav is returned from Update to request a page switch. Params is
// handed to the target page when it implements ParamReceiver.
type PageNav struct {
	PageID string
	Params interface{}
}

// ParamReceiver is implemented by pages that accept navigation params.
// Open is called before the page's Init.
type ParamReceiver interface {
	Open(params interface{}) tea.Cmd
}

// Capturer is implemented by pages that can hold keyboard focus in a text
// input; global shortcuts are suspended while Capturing is true.
type Capturer interface {
	Capturing() bool
}

// Loader is implemented by pages with requests in flight; the app keeps
// the spinner ticking while any page is loading.
type Loader interface {
	Loading() bool
}
