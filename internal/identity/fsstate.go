package identity

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v2"
)

// vaultFile is the on-disk shape of a vault's config. The reference CLI's
// VaultConfig is an untagged enum with exactly one variant today
// (filesystem-backed); see DESIGN.md for the open question this leaves
// about future variant disambiguation.
type vaultFile struct {
	Fs struct {
		Path string `yaml:"path"`
	} `yaml:"fs"`
}

type identityFile struct {
	SpiffeID string `yaml:"spiffe_id"`
}

// FsStateDirectory is the filesystem-backed StateDirectory implementation
// that cmd/relay wires up so the binary runs without a caller having to
// supply their own collaborator. Directory layout and symlink semantics
// are grounded field-for-field on ockam_command/src/state.rs's CliState:
// `$RELAY_HOME/{vaults,identities,nodes}`, with a `default` symlink inside
// each of the first two.
type FsStateDirectory struct {
	root string
}

// NewFsStateDirectory resolves $RELAY_HOME (falling back to
// $HOME/.relay, exactly as the teacher's config layer resolves env vars
// with a hardcoded fallback) and ensures the vaults/identities/nodes
// subdirectories exist.
func NewFsStateDirectory() (*FsStateDirectory, error) {
	root := os.Getenv("RELAY_HOME")
	if root == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("identity: no $HOME and $RELAY_HOME unset: %w", err)
		}
		root = filepath.Join(home, ".relay")
	}

	for _, sub := range []string{"vaults", "identities", "nodes"} {
		if err := os.MkdirAll(filepath.Join(root, sub), 0o700); err != nil {
			return nil, fmt.Errorf("identity: create %s dir: %w", sub, err)
		}
	}

	return &FsStateDirectory{root: root}, nil
}

func (d *FsStateDirectory) vaultsDir() string     { return filepath.Join(d.root, "vaults") }
func (d *FsStateDirectory) identitiesDir() string { return filepath.Join(d.root, "identities") }
func (d *FsStateDirectory) nodesDir() string      { return filepath.Join(d.root, "nodes") }

// OpenVault resolves name, or "default" when name is empty, by following
// the `default` symlink the way VaultsState::default does.
func (d *FsStateDirectory) OpenVault(name string) (VaultHandle, error) {
	path, err := d.resolveConfigPath(d.vaultsDir(), name)
	if err != nil {
		return VaultHandle{}, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return VaultHandle{}, fmt.Errorf("identity: read vault %q: %w: %v", name, ErrNotFound, err)
	}
	var vf vaultFile
	if err := yaml.Unmarshal(data, &vf); err != nil {
		return VaultHandle{}, fmt.Errorf("identity: decode vault %q: %w", name, err)
	}

	return VaultHandle{Name: vaultName(name, path), path: path}, nil
}

// CreateVault writes a new filesystem-backed vault config and, if none
// exists yet, makes it the default.
func (d *FsStateDirectory) CreateVault(name, dataPath string) (VaultHandle, error) {
	var vf vaultFile
	vf.Fs.Path = dataPath
	out, err := yaml.Marshal(&vf)
	if err != nil {
		return VaultHandle{}, fmt.Errorf("identity: marshal vault %q: %w", name, err)
	}

	path := filepath.Join(d.vaultsDir(), name+".yaml")
	if err := os.WriteFile(path, out, 0o600); err != nil {
		return VaultHandle{}, fmt.Errorf("identity: write vault %q: %w", name, err)
	}

	defaultLink := filepath.Join(d.vaultsDir(), "default")
	if _, err := os.Lstat(defaultLink); os.IsNotExist(err) {
		if err := os.Symlink(path, defaultLink); err != nil {
			return VaultHandle{}, fmt.Errorf("identity: set default vault: %w", err)
		}
	}

	return VaultHandle{Name: name, path: path}, nil
}

// OpenIdentity resolves name, or "default" when name is empty.
func (d *FsStateDirectory) OpenIdentity(name string) (IdentityHandle, error) {
	path, err := d.resolveConfigPath(d.identitiesDir(), name)
	if err != nil {
		return IdentityHandle{}, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return IdentityHandle{}, fmt.Errorf("identity: read identity %q: %w: %v", name, ErrNotFound, err)
	}
	var idf identityFile
	if err := yaml.Unmarshal(data, &idf); err != nil {
		return IdentityHandle{}, fmt.Errorf("identity: decode identity %q: %w", name, err)
	}

	return IdentityHandle{Name: identityName(name, path), SpiffeID: idf.SpiffeID, path: path}, nil
}

// CreateIdentity writes a new identity config keyed by its SPIFFE ID and,
// if none exists yet, makes it the default.
func (d *FsStateDirectory) CreateIdentity(name, spiffeID string) (IdentityHandle, error) {
	out, err := yaml.Marshal(&identityFile{SpiffeID: spiffeID})
	if err != nil {
		return IdentityHandle{}, fmt.Errorf("identity: marshal identity %q: %w", name, err)
	}

	path := filepath.Join(d.identitiesDir(), name+".yaml")
	if err := os.WriteFile(path, out, 0o600); err != nil {
		return IdentityHandle{}, fmt.Errorf("identity: write identity %q: %w", name, err)
	}

	defaultLink := filepath.Join(d.identitiesDir(), "default")
	if _, err := os.Lstat(defaultLink); os.IsNotExist(err) {
		if err := os.Symlink(path, defaultLink); err != nil {
			return IdentityHandle{}, fmt.Errorf("identity: set default identity: %w", err)
		}
	}

	return IdentityHandle{Name: name, SpiffeID: spiffeID, path: path}, nil
}

// CreateNode creates `nodes/<name>/` with its version file, empty
// stdout/stderr log files, and symlinks back to its vault/identity,
// mirroring CliState::create_node / NodesState::create. The socket path is
// recorded in the returned NodeState; no file is created there.
func (d *FsStateDirectory) CreateNode(name string, opts NodeOptions) (NodeState, error) {
	vault, err := d.OpenVault(opts.VaultName)
	if err != nil {
		return NodeState{}, fmt.Errorf("identity: resolve vault for node %q: %w", name, err)
	}
	ident, err := d.OpenIdentity(opts.IdentityName)
	if err != nil {
		return NodeState{}, fmt.Errorf("identity: resolve identity for node %q: %w", name, err)
	}

	dir := filepath.Join(d.nodesDir(), name)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return NodeState{}, fmt.Errorf("identity: create node dir %q: %w", name, err)
	}

	ns := NodeState{
		Name:         name,
		Dir:          dir,
		SocketPath:   filepath.Join(dir, "socket"),
		StdoutPath:   filepath.Join(dir, "stdout.log"),
		StderrPath:   filepath.Join(dir, "stderr.log"),
		VersionPath:  filepath.Join(dir, "version"),
		VaultLink:    filepath.Join(dir, "vault"),
		IdentityLink: filepath.Join(dir, "identity"),
	}

	if err := os.WriteFile(ns.VersionPath, []byte(nodeVersion), 0o600); err != nil {
		return NodeState{}, fmt.Errorf("identity: write node version: %w", err)
	}
	for _, p := range []string{ns.StdoutPath, ns.StderrPath} {
		f, err := os.Create(p)
		if err != nil {
			return NodeState{}, fmt.Errorf("identity: create %s: %w", p, err)
		}
		f.Close()
	}
	if err := os.Symlink(vault.path, ns.VaultLink); err != nil {
		return NodeState{}, fmt.Errorf("identity: symlink vault into node %q: %w", name, err)
	}
	if err := os.Symlink(ident.path, ns.IdentityLink); err != nil {
		return NodeState{}, fmt.Errorf("identity: symlink identity into node %q: %w", name, err)
	}

	return ns, nil
}

const nodeVersion = "1.0.0"

// resolveConfigPath resolves name within dir, or dir's "default" symlink
// when name is empty.
func (d *FsStateDirectory) resolveConfigPath(dir, name string) (string, error) {
	if name == "" {
		link := filepath.Join(dir, "default")
		resolved, err := filepath.EvalSymlinks(link)
		if err != nil {
			return "", fmt.Errorf("identity: resolve default in %s: %w: %v", dir, ErrNotFound, err)
		}
		return resolved, nil
	}
	path := filepath.Join(dir, name+".yaml")
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("identity: %q: %w", name, ErrNotFound)
	}
	return path, nil
}

func vaultName(requested, resolvedPath string) string {
	if requested != "" {
		return requested
	}
	return trimYAMLExt(filepath.Base(resolvedPath))
}

func identityName(requested, resolvedPath string) string {
	if requested != "" {
		return requested
	}
	return trimYAMLExt(filepath.Base(resolvedPath))
}

func trimYAMLExt(base string) string {
	const ext = ".yaml"
	if len(base) > len(ext) && base[len(base)-len(ext):] == ext {
		return base[:len(base)-len(ext)]
	}
	return base
}

var _ StateDirectory = (*FsStateDirectory)(nil)
