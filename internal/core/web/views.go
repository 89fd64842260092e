package web

type providerView struct {
	Name     string
	LoginURL string
}

type loginView struct {
	Providers []providerView
	Error     string
}

type dashboardView struct {
	Email      string
	SyncPolicy string // "feed-only" | "apply-confirmed"
	Version    string
}
