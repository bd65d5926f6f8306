package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"gopkg.in/yaml.v3"
)

// DefaultRule is the row rule every collection action carries unless
// overridden.
const DefaultRule = `@request.auth.id != ""`

// RuleActions are the row operations a collection gates.
var RuleActions = []string{"list", "view", "create", "update", "delete"}

// Collections lists every stored collection with a row rule.
var Collections = []string{
	"products", "product_variants", "categories", "vendors", "vendor_products",
	"customers", "customer_interactions", "sales", "sale_items", "sales_orders",
	"sales_order_items", "invoices", "invoice_items", "invoice_payments", "credit_notes",
	"credit_note_items", "delivery_challans", "delivery_challan_items", "purchase_orders",
	"purchase_order_items", "goods_received_notes", "grn_items", "expenses",
	"expense_categories", "bank_accounts", "bank_transactions", "cash_register_shifts",
	"cash_drawer_operations", "loyalty_accounts", "loyalty_transactions", "roles",
	"user_roles", "activity_logs", "store_settings", "number_sequences",
}

// RuleKey addresses one collection action.
type RuleKey struct {
	Collection string
	Action     string
}

func (k RuleKey) String() string {
	return k.Collection + "." + k.Action
}

// RuleStore reads and writes stored row rules.
type RuleStore interface {
	ListRules(ctx context.Context) (map[RuleKey]string, error)
	SetRule(ctx context.Context, key RuleKey, rule string) error
}

// RuleOverrides replaces the default rule for selected collection actions.
// The YAML form is collection -> action -> rule.
type RuleOverrides map[string]map[string]string

// LoadRuleOverrides reads overrides from a YAML file. An empty path yields
// no overrides.
func LoadRuleOverrides(path string) (RuleOverrides, error) {
	if strings.TrimSpace(path) == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("rules: read %s: %w", path, err)
	}
	var out RuleOverrides
	if err := yaml.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("rules: parse %s: %w", path, err)
	}
	known := make(map[string]bool, len(Collections))
	for _, c := range Collections {
		known[c] = true
	}
	for collection, actions := range out {
		if !known[collection] {
			return nil, fmt.Errorf("rules: unknown collection %q", collection)
		}
		for action := range actions {
			if !validAction(action) {
				return nil, fmt.Errorf("rules: unknown action %q for %s", action, collection)
			}
		}
	}
	return out, nil
}

func validAction(action string) bool {
	for _, a := range RuleActions {
		if a == action {
			return true
		}
	}
	return false
}

// ExpectedRules expands the default rule over every collection action and
// applies overrides.
func ExpectedRules(overrides RuleOverrides) map[RuleKey]string {
	out := make(map[RuleKey]string, len(Collections)*len(RuleActions))
	for _, c := range Collections {
		for _, a := range RuleActions {
			rule := DefaultRule
			if o, ok := overrides[c][a]; ok {
				rule = o
			}
			out[RuleKey{Collection: c, Action: a}] = rule
		}
	}
	return out
}

// RuleDrift is one stored rule that differs from the expected rule.
type RuleDrift struct {
	Collection string `json:"collection"`
	Action     string `json:"action"`
	Expected   string `json:"expected"`
	Actual     string `json:"actual"`
	Missing    bool   `json:"missing,omitempty"`
}

// DiffRules compares stored rules with expected ones, ordered by collection
// then action.
func DiffRules(expected, actual map[RuleKey]string) []RuleDrift {
	var drift []RuleDrift
	for key, want := range expected {
		got, ok := actual[key]
		if ok && strings.TrimSpace(got) == want {
			continue
		}
		drift = append(drift, RuleDrift{
			Collection: key.Collection,
			Action:     key.Action,
			Expected:   want,
			Actual:     got,
			Missing:    !ok,
		})
	}
	sort.Slice(drift, func(i, j int) bool {
		if drift[i].Collection == drift[j].Collection {
			return drift[i].Action < drift[j].Action
		}
		return drift[i].Collection < drift[j].Collection
	})
	return drift
}

// RulesOptions defines flags shared by audit-rules and repair-rules.
type RulesOptions struct {
	Overrides  RuleOverrides
	JSONOutput bool
	DryRun     bool
	Stdout     io.Writer
	Stderr     io.Writer
}

// RulesSummary is the JSON output of audit-rules.
type RulesSummary struct {
	OK       bool        `json:"ok"`
	Checked  int         `json:"checked"`
	Drift    []RuleDrift `json:"drift"`
	Repaired int         `json:"repaired,omitempty"`
}

// RulesCLI audits and repairs row rules.
type RulesCLI struct {
	store RuleStore
}

// NewRulesCLI constructs a RulesCLI.
func NewRulesCLI(store RuleStore) *RulesCLI {
	return &RulesCLI{store: store}
}

// AuditCommand reports drift. It exits 10 when any rule drifted.
func (c *RulesCLI) AuditCommand(ctx context.Context, opts RulesOptions) int {
	opts = withWriters(opts)
	expected := ExpectedRules(opts.Overrides)
	actual, err := c.store.ListRules(ctx)
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "audit-rules: %v\n", err)
		return 1
	}
	drift := DiffRules(expected, actual)
	summary := RulesSummary{OK: len(drift) == 0, Checked: len(expected), Drift: drift}
	if code := render(opts, "audit-rules", summary); code != 0 {
		return code
	}
	if len(drift) > 0 {
		return 10
	}
	return 0
}

// RepairCommand rewrites drifted rules to their expected value.
func (c *RulesCLI) RepairCommand(ctx context.Context, opts RulesOptions) int {
	opts = withWriters(opts)
	expected := ExpectedRules(opts.Overrides)
	actual, err := c.store.ListRules(ctx)
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "repair-rules: %v\n", err)
		return 1
	}
	drift := DiffRules(expected, actual)
	summary := RulesSummary{OK: true, Checked: len(expected), Drift: drift}
	if !opts.DryRun {
		for _, d := range drift {
			key := RuleKey{Collection: d.Collection, Action: d.Action}
			if err := c.store.SetRule(ctx, key, d.Expected); err != nil {
				_, _ = fmt.Fprintf(opts.Stderr, "repair-rules: %s: %v\n", key, err)
				summary.OK = false
				break
			}
			summary.Repaired++
		}
	}
	if code := render(opts, "repair-rules", summary); code != 0 {
		return code
	}
	if !summary.OK {
		return 1
	}
	return 0
}

func withWriters(opts RulesOptions) RulesOptions {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	return opts
}

func render(opts RulesOptions, command string, summary RulesSummary) int {
	if summary.Drift == nil {
		summary.Drift = []RuleDrift{}
	}
	if opts.JSONOutput {
		if err := json.NewEncoder(opts.Stdout).Encode(summary); err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "%s: encode json: %v\n", command, err)
			return 1
		}
		return 0
	}
	_, _ = fmt.Fprintf(opts.Stdout, "%s: checked %d rules\n", command, summary.Checked)
	if len(summary.Drift) == 0 {
		_, _ = fmt.Fprintln(opts.Stdout, "All row rules match.")
		return 0
	}
	_, _ = fmt.Fprintf(opts.Stdout, "%d rule(s) drifted:\n", len(summary.Drift))
	for _, d := range summary.Drift {
		actual := d.Actual
		if d.Missing {
			actual = "(missing)"
		}
		_, _ = fmt.Fprintf(opts.Stdout, " - %s.%s: %q, want %q\n", d.Collection, d.Action, actual, d.Expected)
	}
	if summary.Repaired > 0 {
		_, _ = fmt.Fprintf(opts.Stdout, "Repaired %d rule(s).\n", summary.Repaired)
	}
	return 0
}

// PGRuleStore keeps row rules in the collection_rules table.
type PGRuleStore struct {
	pool *pgxpool.Pool
}

// NewPGRuleStore constructs a PGRuleStore.
func NewPGRuleStore(pool *pgxpool.Pool) *PGRuleStore {
	return &PGRuleStore{pool: pool}
}

// ListRules returns every stored rule.
func (s *PGRuleStore) ListRules(ctx context.Context) (map[RuleKey]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT collection, action, rule FROM collection_rules`)
	if err != nil {
		return nil, fmt.Errorf("rules: list: %w", err)
	}
	defer rows.Close()
	out := make(map[RuleKey]string)
	for rows.Next() {
		var key RuleKey
		var rule string
		if err := rows.Scan(&key.Collection, &key.Action, &rule); err != nil {
			return nil, fmt.Errorf("rules: scan: %w", err)
		}
		out[key] = rule
	}
	return out, rows.Err()
}

// SetRule upserts one rule.
func (s *PGRuleStore) SetRule(ctx context.Context, key RuleKey, rule string) error {
	_, err := s.pool.Exec(ctx, `INSERT INTO collection_rules (collection, action, rule, updated_at)
VALUES ($1, $2, $3, NOW())
ON CONFLICT (collection, action) DO UPDATE SET rule = EXCLUDED.rule, updated_at = NOW()`,
		key.Collection, key.Action, rule)
	if err != nil {
		return fmt.Errorf("rules: set %s: %w", key, err)
	}
	return nil
}
