package tui

// Keybinding constants
const (
	KeyTab       = "tab"
	KeyShiftTab  = "shift+tab"
	KeyQuit      = "q"
	KeyCtrlC     = "ctrl+c"
	KeyPane1     = "1"
	KeyPane2     = "2"
	KeyUp        = "up"
	KeyDown      = "down"
	KeyJ         = "j"
	KeyK         = "k"
	KeyPipeline  = "p"
	KeyEmergency = "e"
	KeyCancel    = "x"
)

// HelpView returns a one-line help bar with common keybindings.
func HelpView() string {
	return StyleMuted.Render("Tab: cycle focus | 1/2: jump to pane | j/k: select | p: run pipeline | e: emergency | x: cancel task | q: quit")
}
