// Package main provides the entry point for the Box Annotator application.
package main

import (
	"log/slog"
	"os"

	"box-annotator/internal/app"
	"box-annotator/internal/config"
	"box-annotator/internal/logging"
	"box-annotator/internal/version"
	"box-annotator/ui/mainwindow"
	"box-annotator/ui/prefs"

	fyneapp "fyne.io/fyne/v2/app"
)

const appID = "io.github.boxannotator"

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Init(os.Stderr, slog.LevelInfo)
		slog.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}
	logging.Init(os.Stderr, logging.ParseLevel(cfg.Log.Level))
	slog.Info("Starting "+version.String(),
		slog.String("projects", cfg.Storage.ProjectsRoot),
		slog.String("backend", cfg.Storage.Backend))

	appState, err := app.NewState(cfg)
	if err != nil {
		slog.Error("failed to create session", slog.Any("error", err))
		os.Exit(1)
	}
	defer appState.Close()
	appPrefs := prefs.Load()

	a := fyneapp.NewWithID(appID)
	a.Settings().SetTheme(&app.AnnotatorTheme{})

	win := mainwindow.New(a, appState, appPrefs)
	win.SetMaster()

	// Handle command line arguments, falling back to the last project
	if len(os.Args) > 1 {
		win.OpenProject(os.Args[1])
	} else if recent := appPrefs.Recent(); len(recent) > 0 && app.ProjectFileExists(recent[0]) {
		win.OpenProject(recent[0])
	}

	win.ShowAndRun()
}
