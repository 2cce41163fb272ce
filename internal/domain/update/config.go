package update

import (
	"fmt"
	"strings"

	"github.com/go-viper/mapstructure/v2"
)

// CheckType is the discriminator selecting a check strategy.
type CheckType string

// Check strategy kinds.
const (
	CheckGithubRelease CheckType = "github_release"
	CheckGithubCommit  CheckType = "github_commit"
	CheckGitCommit     CheckType = "git_commit"
	CheckCommandline   CheckType = "commandline"
	CheckCustom        CheckType = "custom_checker"
)

// CheckConfig is one variant of the closed set of check configurations.
type CheckConfig interface {
	CheckType() CheckType
}

// GithubReleaseCheck compares the current version with the latest GitHub release.
type GithubReleaseCheck struct {
	User       string `mapstructure:"user"`
	Repo       string `mapstructure:"repo"`
	Prerelease bool   `mapstructure:"prerelease"`
	Current    string `mapstructure:"current"`
}

// GithubCommitCheck compares the current commit with the head of a GitHub branch.
type GithubCommitCheck struct {
	User    string `mapstructure:"user"`
	Repo    string `mapstructure:"repo"`
	Branch  string `mapstructure:"branch"`
	Current string `mapstructure:"current"`
}

// GitCommitCheck compares a local checkout with its upstream.
type GitCommitCheck struct {
	CheckoutFolder string `mapstructure:"checkout_folder"`
}

// CommandlineCheck delegates the decision to an external command.
type CommandlineCheck struct {
	Command string `mapstructure:"command"`
}

// CustomCheck uses a contributed Checker object.
type CustomCheck struct {
	Checker Checker
}

// CheckType implements CheckConfig.
func (GithubReleaseCheck) CheckType() CheckType { return CheckGithubRelease }

// CheckType implements CheckConfig.
func (GithubCommitCheck) CheckType() CheckType { return CheckGithubCommit }

// CheckType implements CheckConfig.
func (GitCommitCheck) CheckType() CheckType { return CheckGitCommit }

// CheckType implements CheckConfig.
func (CommandlineCheck) CheckType() CheckType { return CheckCommandline }

// CheckType implements CheckConfig.
func (CustomCheck) CheckType() CheckType { return CheckCustom }

// DecodeCheck decodes the target's record into its check variant.
// A missing type is ErrConfigurationInvalid, an unrecognized one ErrUnknownCheckType.
//
//nolint:ireturn // Returning the closed variant set is the point.
func DecodeCheck(t *Target) (CheckConfig, error) {
	checkType := t.CheckType()
	if checkType == "" {
		return nil, invalidf("%s: no check type defined", t.Name)
	}

	switch checkType {
	case CheckGithubRelease:
		var c GithubReleaseCheck
		if err := decode(t.Config, &c); err != nil {
			return nil, err
		}

		if c.User == "" || c.Repo == "" {
			return nil, invalidf("%s: github_release needs user and repo", t.Name)
		}

		return c, nil
	case CheckGithubCommit:
		var c GithubCommitCheck
		if err := decode(t.Config, &c); err != nil {
			return nil, err
		}

		if c.User == "" || c.Repo == "" {
			return nil, invalidf("%s: github_commit needs user and repo", t.Name)
		}

		if c.Branch == "" {
			c.Branch = "master"
		}

		return c, nil
	case CheckGitCommit:
		var c GitCommitCheck
		if err := decode(t.Config, &c); err != nil {
			return nil, err
		}

		if c.CheckoutFolder == "" {
			return nil, invalidf("%s: git_commit needs checkout_folder", t.Name)
		}

		return c, nil
	case CheckCommandline:
		var c CommandlineCheck
		if err := decode(t.Config, &c); err != nil {
			return nil, err
		}

		if c.Command == "" {
			return nil, invalidf("%s: commandline needs command", t.Name)
		}

		return c, nil
	case CheckCustom:
		if t.CustomChecker == nil {
			return nil, invalidf("%s: custom_checker has no contributed checker", t.Name)
		}

		return CustomCheck{Checker: t.CustomChecker}, nil
	default:
		return nil, fmt.Errorf("%w: %q for %s", ErrUnknownCheckType, checkType, t.Name)
	}
}

// Mechanism names an update mechanism marker.
type Mechanism string

// Update mechanisms, selected by the marker present in a target record.
const (
	MechanismScript  Mechanism = "update_script"
	MechanismPackage Mechanism = "pip"
	MechanismBinary  Mechanism = "binary"
	MechanismCustom  Mechanism = "custom_updater"
)

// UpdateConfig is one variant of the closed set of update configurations.
type UpdateConfig interface {
	Mechanism() Mechanism
}

// ScriptUpdate runs a command line, optionally inside a checkout folder.
type ScriptUpdate struct {
	Script string `mapstructure:"update_script"`
	Folder string `mapstructure:"checkout_folder"`
}

// PackageUpdate installs a package spec with a package manager.
type PackageUpdate struct {
	Spec    string `mapstructure:"pip"`
	Command string `mapstructure:"pip_command"`
}

// BinaryUpdate replaces an executable with a downloaded release artifact.
type BinaryUpdate struct {
	URL      string `mapstructure:"url"`
	Path     string `mapstructure:"path"`
	Checksum string `mapstructure:"checksum"`
}

// CustomUpdate uses a contributed Updater object.
type CustomUpdate struct {
	Updater Updater
}

// Mechanism implements UpdateConfig.
func (ScriptUpdate) Mechanism() Mechanism { return MechanismScript }

// Mechanism implements UpdateConfig.
func (PackageUpdate) Mechanism() Mechanism { return MechanismPackage }

// Mechanism implements UpdateConfig.
func (BinaryUpdate) Mechanism() Mechanism { return MechanismBinary }

// Mechanism implements UpdateConfig.
func (CustomUpdate) Mechanism() Mechanism { return MechanismCustom }

// Mechanisms lists the markers present on a target.
func (t *Target) Mechanisms() []Mechanism {
	var found []Mechanism

	for _, m := range []Mechanism{MechanismScript, MechanismPackage, MechanismBinary} {
		if t.Has(string(m)) {
			found = append(found, m)
		}
	}

	if t.CustomUpdater != nil {
		found = append(found, MechanismCustom)
	}

	return found
}

// DecodeUpdate decodes the target's record into its update variant.
// No marker is ErrUnknownUpdateType, several markers ErrConfigurationInvalid.
//
//nolint:ireturn // Returning the closed variant set is the point.
func DecodeUpdate(t *Target) (UpdateConfig, error) {
	found := t.Mechanisms()

	switch len(found) {
	case 0:
		return nil, fmt.Errorf("%w: %s has no update mechanism", ErrUnknownUpdateType, t.Name)
	case 1:
	default:
		names := make([]string, 0, len(found))
		for _, m := range found {
			names = append(names, string(m))
		}

		return nil, invalidf("%s: conflicting update mechanisms %s", t.Name, strings.Join(names, ", "))
	}

	switch found[0] {
	case MechanismScript:
		var c ScriptUpdate
		if err := decode(t.Config, &c); err != nil {
			return nil, err
		}

		if c.Script == "" {
			return nil, invalidf("%s: update_script is empty", t.Name)
		}

		return c, nil
	case MechanismPackage:
		var c PackageUpdate
		if err := decode(t.Config, &c); err != nil {
			return nil, err
		}

		if c.Spec == "" {
			return nil, invalidf("%s: pip is empty", t.Name)
		}

		return c, nil
	case MechanismBinary:
		var c BinaryUpdate

		raw, ok := t.Config[KeyBinary].(map[string]any)
		if !ok {
			return nil, invalidf("%s: binary must be a mapping", t.Name)
		}

		if err := decode(raw, &c); err != nil {
			return nil, err
		}

		if c.URL == "" || c.Path == "" {
			return nil, invalidf("%s: binary needs url and path", t.Name)
		}

		return c, nil
	case MechanismCustom:
		return CustomUpdate{Updater: t.CustomUpdater}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownUpdateType, t.Name)
	}
}

// decode maps a loosely typed record onto a variant struct, ignoring unrelated keys.
func decode(record map[string]any, out any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return fmt.Errorf("build decoder: %w", err)
	}

	if err = decoder.Decode(record); err != nil {
		return fmt.Errorf("%w: %w", ErrConfigurationInvalid, err)
	}

	return nil
}
