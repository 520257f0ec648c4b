// Command overcode-dbctl is a read-only inspector for a running
// daemon's overcode.db: event backlog, status-history rows, and the
// federation-peer reachability cache. It opens the database with the
// pure-Go modernc.org/sqlite driver so an operator never needs cgo on
// the inspecting machine, even though the daemon itself writes with
// mattn/go-sqlite3.
package main

import (
	"database/sql"
	"flag"
	"fmt"
	"os"
	"text/tabwriter"

	_ "modernc.org/sqlite"
)

func main() {
	dbPath := flag.String("db", "", "path to overcode.db (required)")
	flag.Parse()

	if *dbPath == "" {
		fmt.Fprintln(os.Stderr, "usage: overcode-dbctl -db <path/to/overcode.db> <events|history|peers>")
		os.Exit(1)
	}
	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: overcode-dbctl -db <path/to/overcode.db> <events|history|peers>")
		os.Exit(1)
	}

	conn, err := sql.Open("sqlite", "file:"+*dbPath+"?mode=ro")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open %s: %v\n", *dbPath, err)
		os.Exit(1)
	}
	defer conn.Close()

	var runErr error
	switch flag.Arg(0) {
	case "events":
		runErr = dumpEvents(conn)
	case "history":
		runErr = dumpHistory(conn)
	case "peers":
		runErr = dumpPeers(conn)
	default:
		fmt.Fprintf(os.Stderr, "unknown subcommand %q (want events, history, or peers)\n", flag.Arg(0))
		os.Exit(1)
	}
	if runErr != nil {
		fmt.Fprintf(os.Stderr, "query failed: %v\n", runErr)
		os.Exit(1)
	}
}

func dumpEvents(conn *sql.DB) error {
	rows, err := conn.Query(`
		SELECT id, type, source, target, priority, created_at, delivered_at
		FROM events ORDER BY created_at DESC LIMIT 200`)
	if err != nil {
		return err
	}
	defer rows.Close()

	w := tabwriter.NewWriter(os.Stdout, 0, 2, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTYPE\tSOURCE\tTARGET\tPRIORITY\tCREATED_AT\tDELIVERED_AT")
	for rows.Next() {
		var id, typ, source, target, createdAt string
		var priority int
		var deliveredAt sql.NullString
		if err := rows.Scan(&id, &typ, &source, &target, &priority, &createdAt, &deliveredAt); err != nil {
			return err
		}
		delivered := "-"
		if deliveredAt.Valid {
			delivered = deliveredAt.String
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\t%s\n", id, typ, source, target, priority, createdAt, delivered)
	}
	w.Flush()
	return rows.Err()
}

func dumpHistory(conn *sql.DB) error {
	rows, err := conn.Query(`
		SELECT timestamp, agent, status, activity
		FROM status_history ORDER BY timestamp DESC LIMIT 200`)
	if err != nil {
		return err
	}
	defer rows.Close()

	w := tabwriter.NewWriter(os.Stdout, 0, 2, 2, ' ', 0)
	fmt.Fprintln(w, "TIMESTAMP\tAGENT\tSTATUS\tACTIVITY")
	for rows.Next() {
		var timestamp, agent, status string
		var activity sql.NullString
		if err := rows.Scan(&timestamp, &agent, &status, &activity); err != nil {
			return err
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", timestamp, agent, status, activity.String)
	}
	w.Flush()
	return rows.Err()
}

func dumpPeers(conn *sql.DB) error {
	rows, err := conn.Query(`
		SELECT name, reachable, last_error, last_polled_at
		FROM federation_peers ORDER BY name`)
	if err != nil {
		return err
	}
	defer rows.Close()

	w := tabwriter.NewWriter(os.Stdout, 0, 2, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tREACHABLE\tLAST_ERROR\tLAST_POLLED_AT")
	for rows.Next() {
		var name, lastPolledAt string
		var reachable int
		var lastError sql.NullString
		if err := rows.Scan(&name, &reachable, &lastError, &lastPolledAt); err != nil {
			return err
		}
		fmt.Fprintf(w, "%s\t%v\t%s\t%s\n", name, reachable != 0, lastError.String, lastPolledAt)
	}
	w.Flush()
	return rows.Err()
}
