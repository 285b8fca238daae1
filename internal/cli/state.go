package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/wardgate/wardgate/internal/audit"
	"github.com/wardgate/wardgate/internal/gateway"
	"github.com/wardgate/wardgate/internal/rulepack"
	"github.com/wardgate/wardgate/internal/rules"
)

// stateHome resolves the wardgate state directory: WARDGATE_HOME when set,
// ~/.wardgate otherwise.
func stateHome() (string, error) {
	if dir := os.Getenv("WARDGATE_HOME"); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(home, ".wardgate"), nil
}

// loadPack returns the pack override from the state directory, or the
// builtin pack when no override exists.
func loadPack(home string) (*rulepack.Pack, error) {
	return rulepack.Load(rulepack.DefaultPath(home))
}

// compileChecker builds the rule checker, printing pattern compile
// warnings to stderr.
func compileChecker(pack *rulepack.Pack) *rules.Checker {
	checker, warnings := rules.NewChecker(pack)
	for _, w := range warnings {
		fmt.Fprintln(os.Stderr, w)
	}
	return checker
}

// components bundles the state-backed pieces shared by most commands.
type components struct {
	home    string
	pack    *rulepack.Pack
	checker *rules.Checker
	keys    *audit.Keys
	ledger  *audit.Ledger
}

// openComponents loads the rule pack, signing keys and ledger from the
// state directory. First use bootstraps the directory and keypair.
func openComponents() (*components, error) {
	home, err := stateHome()
	if err != nil {
		return nil, err
	}
	pack, err := loadPack(home)
	if err != nil {
		return nil, err
	}
	checker := compileChecker(pack)

	keys, err := audit.LoadOrCreateKeys(filepath.Join(home, "keys"))
	if err != nil {
		return nil, err
	}
	ledger, err := audit.Open(home, keys, audit.Provenance{
		PolicyHash:   checker.PolicyHash(),
		RulesVersion: checker.Version(),
		Version:      version,
	})
	if err != nil {
		return nil, err
	}

	return &components{
		home:    home,
		pack:    pack,
		checker: checker,
		keys:    keys,
		ledger:  ledger,
	}, nil
}

// Close releases the ledger file handle.
func (c *components) Close() {
	_ = c.ledger.Close()
}

// newGateway builds a staging gateway recording decisions as actor.
func (c *components) newGateway(actor string) *gateway.Gateway {
	return gateway.New(filepath.Join(c.home, "staging"), c.checker, c.ledger, actor)
}
