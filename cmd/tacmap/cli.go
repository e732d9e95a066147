package main

import (
	"compress/gzip"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"tacmap/internal/config"
	"tacmap/internal/database"
	"tacmap/internal/geo"
	"tacmap/internal/session"
	"tacmap/pkg/core"
)

// runCommand handles the maintenance subcommands that operate on the
// session store without starting the dashboard.
func runCommand(cfg config.Config, logFile *os.File, args []string) error {
	zlog := zerologTo(logFile)

	dbManager := database.NewManager(cfg.DB, zlog)
	if err := dbManager.Connect(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer dbManager.Close()
	if err := dbManager.Setup(session.DatabaseModels...); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	store := session.NewStore(dbManager.DB, zlog)

	switch strings.ToLower(args[0]) {
	case "sessions":
		return listSessions(store)
	case "export":
		if len(args) < 2 {
			return fmt.Errorf("no session IDs provided")
		}
		return exportSessions(store, args[1:])
	default:
		return fmt.Errorf("unknown command %q (expected serve, sessions, or export)", args[0])
	}
}

func listSessions(store *session.Store) error {
	sessions, err := store.Sessions()
	if err != nil {
		return err
	}
	if len(sessions) == 0 {
		fmt.Println("No recorded sessions.")
		return nil
	}
	for _, s := range sessions {
		ended := "in progress"
		if s.EndedAt != nil {
			ended = s.EndedAt.Format(time.RFC3339)
		}
		fmt.Printf("%d\t%s\t%s\t%s\n", s.ID, s.Name, s.StartedAt.Format(time.RFC3339), ended)
	}
	return nil
}

// trailsWkt builds per-soldier movement paths as WKT line strings so the
// export can be loaded straight into GIS tooling. Soldiers with fewer
// than two fixes are omitted.
func trailsWKT(history core.History) map[string]string {
	paths := map[string][]core.Position{}
	for _, s := range history.Soldiers {
		if s.GPS == nil || s.GPS.Latitude == nil || s.GPS.Longitude == nil {
			continue
		}
		p := core.Position{Latitude: *s.GPS.Latitude, Longitude: *s.GPS.Longitude}
		prev := paths[s.ID]
		if len(prev) > 0 && prev[len(prev)-1] == p {
			continue
		}
		paths[s.ID] = append(prev, p)
	}

	out := map[string]string{}
	for id, pts := range paths {
		ls, err := geo.TrailLineString(pts)
		if err != nil {
			continue
		}
		out[id] = ls.AsText()
	}
	return out
}

// exportSessions dumps each recorded session to a gzipped JSON file in
// the current directory.
func exportSessions(store *session.Store, sessionIDs []string) error {
	fmt.Println("Exporting session IDs: ", sessionIDs)

	for _, sessionID := range sessionIDs {
		id, err := strconv.ParseUint(sessionID, 10, 32)
		if err != nil {
			return fmt.Errorf("invalid session ID %q: %w", sessionID, err)
		}

		txStart := time.Now()
		history, err := store.LoadHistory(uint(id))
		if err != nil {
			return fmt.Errorf("error loading session %s: %w", sessionID, err)
		}

		export := map[string]any{
			"sessionId":  id,
			"durationMs": history.Duration().Milliseconds(),
			"soldiers":   history.Soldiers,
			"kills":      history.Kills,
			"stats":      history.Stats,
			"trailsWkt":  trailsWKT(history),
		}
		if start := history.Start(); !start.IsZero() {
			export["startedAt"] = start
		}

		exportJSON, err := json.Marshal(export)
		if err != nil {
			return fmt.Errorf("error marshalling session data: %w", err)
		}

		fileName := fmt.Sprintf("session_%s_%s.json.gz", sessionID, txStart.Format("20060102_150405"))
		f, err := os.Create(fileName)
		if err != nil {
			return fmt.Errorf("error creating file: %w", err)
		}

		gzWriter := gzip.NewWriter(f)
		if _, err = gzWriter.Write(exportJSON); err != nil {
			gzWriter.Close()
			f.Close()
			return fmt.Errorf("error writing to gzip: %w", err)
		}
		if err = gzWriter.Close(); err != nil {
			f.Close()
			return fmt.Errorf("error closing gzip writer: %w", err)
		}
		if err = f.Close(); err != nil {
			return fmt.Errorf("error closing file: %w", err)
		}

		fmt.Println("Wrote session data to ", fileName)
		fmt.Println("Exported in ", time.Since(txStart))
	}

	return nil
}
