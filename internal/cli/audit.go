package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/wardgate/wardgate/internal/audit"
	"github.com/wardgate/wardgate/internal/index"
)

var (
	tailLines    int
	replayFormat string

	replayFlags filterFlags
	queryFlags  filterFlags
)

// filterFlags holds the record selection flags shared by replay and query.
type filterFlags struct {
	actor    string
	action   string
	code     string
	resource string
	since    string
	limit    int
}

func (f *filterFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.actor, "actor", "", "Filter by actor")
	cmd.Flags().StringVar(&f.action, "action", "", "Filter by action (ALLOW|BLOCK)")
	cmd.Flags().StringVar(&f.code, "code", "", "Filter by violation code")
	cmd.Flags().StringVar(&f.resource, "resource", "", "Filter by resource substring")
	cmd.Flags().StringVar(&f.since, "since", "", "Records at or after this timestamp")
	cmd.Flags().IntVar(&f.limit, "limit", 0, "Keep only the most recent N matches")
}

func (f *filterFlags) filter() audit.Filter {
	return audit.Filter{
		Actor:    f.actor,
		Action:   f.action,
		Code:     f.code,
		Resource: f.resource,
		Since:    f.since,
		Limit:    f.limit,
	}
}

func init() {
	rootCmd.AddCommand(auditCmd)
	auditCmd.AddCommand(auditVerifyCmd, auditTailCmd, auditReplayCmd, auditIndexCmd, auditQueryCmd)
	auditTailCmd.Flags().IntVarP(&tailLines, "lines", "n", 10, "Number of recent records to show")
	auditReplayCmd.Flags().StringVarP(&replayFormat, "format", "f", "text", "Output format (text|json)")
	replayFlags.register(auditReplayCmd)
	queryFlags.register(auditQueryCmd)
}

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Audit ledger operations",
	Long:  "Commands for verifying, inspecting and indexing the signed decision ledger.",
}

var auditVerifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Verify the full hash chain and every signature",
	Long: "Replays the ledger from GENESIS, recomputing each record's chain hash\n" +
		"and checking each Ed25519 signature. Exits 0 if valid, 1 if tampered.",
	RunE: runAuditVerify,
}

var auditTailCmd = &cobra.Command{
	Use:   "tail",
	Short: "Show recent ledger records",
	Long:  "Reads the last N records from the ledger and pretty-prints them.",
	RunE:  runAuditTail,
}

var auditReplayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Replay the ledger as a decision timeline",
	Long: "Reads the ledger, applies the given filters, and renders a\n" +
		"human-readable timeline with summary counts.",
	RunE: runAuditReplay,
}

var auditIndexCmd = &cobra.Command{
	Use:   "index",
	Short: "Rebuild the SQLite decision index from the ledger",
	Long: "Mirrors every ledger record into decisions.db for ad hoc querying.\n" +
		"The ledger stays the source of truth; the index is disposable.",
	RunE: runAuditIndex,
}

var auditQueryCmd = &cobra.Command{
	Use:   "query",
	Short: "Query the SQLite decision index",
	Long:  "Runs the given filters against decisions.db and renders the matches\nas a timeline.",
	RunE:  runAuditQuery,
}

func runAuditVerify(cmd *cobra.Command, args []string) error {
	home, err := stateHome()
	if err != nil {
		return err
	}
	pub, err := audit.LoadPublicKey(filepath.Join(home, "keys", "public.pem"))
	if err != nil {
		return fmt.Errorf("load public key (run 'wardgate init' first): %w", err)
	}

	rep := audit.Verify(filepath.Join(home, audit.LogFile), pub)
	if rep.Valid {
		if rep.UnsignedSkipped > 0 {
			fmt.Printf("OK: %d records verified, %d unsigned skipped\n", rep.RecordsChecked, rep.UnsignedSkipped)
		} else {
			fmt.Printf("OK: %d records verified\n", rep.RecordsChecked)
		}
		return nil
	}
	fmt.Fprintf(os.Stderr, "FAILED at line %d (%s): %s\n", rep.BrokenAt, rep.Kind, rep.Error)
	os.Exit(1)
	return nil
}

func runAuditTail(cmd *cobra.Command, args []string) error {
	home, err := stateHome()
	if err != nil {
		return err
	}
	records, err := audit.Tail(filepath.Join(home, audit.LogFile), tailLines)
	if err != nil {
		return err
	}
	for _, rec := range records {
		out, err := audit.FormatJSON(rec)
		if err != nil {
			return err
		}
		fmt.Println(out)
	}
	return nil
}

func runAuditReplay(cmd *cobra.Command, args []string) error {
	home, err := stateHome()
	if err != nil {
		return err
	}
	records, err := audit.ReadAll(filepath.Join(home, audit.LogFile))
	if err != nil {
		return err
	}
	matched := replayFlags.filter().Apply(records)

	switch replayFormat {
	case "json":
		out, err := audit.FormatJSON(matched)
		if err != nil {
			return err
		}
		fmt.Println(out)
	default:
		fmt.Print(audit.FormatTimeline(matched))
	}
	return nil
}

func runAuditIndex(cmd *cobra.Command, args []string) error {
	home, err := stateHome()
	if err != nil {
		return err
	}
	store, err := index.Open(filepath.Join(home, index.File))
	if err != nil {
		return err
	}
	defer store.Close()

	n, err := store.Sync(context.Background(), filepath.Join(home, audit.LogFile))
	if err != nil {
		return err
	}
	fmt.Printf("Indexed %d records into %s\n", n, filepath.Join(home, index.File))
	return nil
}

func runAuditQuery(cmd *cobra.Command, args []string) error {
	home, err := stateHome()
	if err != nil {
		return err
	}
	store, err := index.Open(filepath.Join(home, index.File))
	if err != nil {
		return err
	}
	defer store.Close()

	records, err := store.Query(context.Background(), queryFlags.filter())
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Println("No matching decisions. Run 'wardgate audit index' to refresh the index.")
		return nil
	}
	fmt.Print(audit.FormatTimeline(records))
	return nil
}
