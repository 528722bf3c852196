package organizer

import (
	"embed"
	"io/fs"
	"net/http"
)

type ManifestIcon struct {
	Src   string `json:"src"`
	Sizes string `json:"sizes"`
	Type  string `json:"type"`
}

type Manifest struct {
	Name            string         `json:"name"`
	ShortName       string         `json:"short_name"`
	Description     string         `json:"description"`
	StartUrl        string         `json:"start_url"`
	Scope           string         `json:"scope"`
	Display         string         `json:"display"`
	BackgroundColor string         `json:"background_color"`
	ThemeColor      string         `json:"theme_color"`
	Icons           []ManifestIcon `json:"icons"`
}

var manifest = Manifest{
	Name:            "高鐵乘車證明整理",
	ShortName:       "高鐵收據",
	Description:     "Organize downloaded THSR receipts for expense reports.",
	StartUrl:        "/",
	Scope:           "/",
	Display:         "standalone",
	BackgroundColor: "#ffffff",
	ThemeColor:      "#ca4f0f",
	Icons: []ManifestIcon{
		{Src: "/icon.svg", Sizes: "any", Type: "image/svg+xml"},
	},
}

func handleManifest(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/manifest+json")
	w.Header().Set("Cache-Control", "no-cache")
	writeJson(w, http.StatusOK, manifest)
}

//go:embed static
var static embed.FS

func staticHandler() http.Handler {
	sub, err := fs.Sub(static, "static")
	if err != nil {
		panic(err)
	}
	return http.FileServer(http.FS(sub))
}
