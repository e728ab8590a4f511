// Package web holds the dashboard page of the monitoring server.
package web

import (
	"embed"
	"io/fs"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
)

// EnvDevMode names the variable that makes the dashboard load from the
// source tree, so the page can be edited without rebuilding.
const EnvDevMode = "ISP_MONITOR_DEV"

//go:embed dist/*
var dist embed.FS

// DevMode reports whether EnvDevMode is set to a true value.
func DevMode() bool {
	on, err := strconv.ParseBool(os.Getenv(EnvDevMode))
	return err == nil && on
}

// GetAssets returns the dashboard files.
func GetAssets() http.FileSystem {
	if DevMode() {
		dir := sourceDir()
		log.Printf("monitor: serving dashboard from %s", dir)

		return http.Dir(dir)
	}

	sub, err := fs.Sub(dist, "dist")
	if err != nil {
		panic(err)
	}

	return http.FS(sub)
}

func sourceDir() string {
	_, file, _, ok := runtime.Caller(0)
	if !ok {
		panic("cannot locate the dashboard sources")
	}

	return filepath.Join(filepath.Dir(file), "dist")
}

// Handler serves the dashboard. In dev mode responses are not cached.
func Handler() http.Handler {
	files := http.FileServer(GetAssets())
	if !DevMode() {
		return files
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-store")
		files.ServeHTTP(w, r)
	})
}
