package updater

import (
	"context"
	"crypto"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"os"

	goupdate "github.com/doitdistributed/go-update"

	"github.com/oshokin/swupdate/internal/domain/update"

	// Ensure SHA256 available for checksum verification.
	_ "crypto/sha256"
)

const (
	// binaryFileMode is the mode of a replaced executable.
	binaryFileMode os.FileMode = 0o755
	// checksumFunction verifies downloaded binaries.
	checksumFunction = crypto.SHA256
)

var errBadHTTPStatus = errors.New("unexpected http status")

type binaryUpdater struct {
	client *http.Client
	cfg    update.BinaryUpdate
}

func (u *binaryUpdater) CanApply(_ context.Context, _ *update.Target) bool {
	if u.cfg.URL == "" || u.cfg.Path == "" {
		return false
	}

	if u.cfg.Checksum != "" {
		if _, err := hex.DecodeString(u.cfg.Checksum); err != nil {
			return false
		}
	}

	return checksumFunction.Available()
}

func (u *binaryUpdater) Apply(ctx context.Context, _ *update.Target, targetVersion string, log update.LogFunc) (any, error) {
	source := expand(u.cfg.URL, map[string]string{"target_version": targetVersion})

	log(streamMessage, "Downloading "+source)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, source, http.NoBody)
	if err != nil {
		return nil, &update.UpdateError{Data: err.Error(), Err: fmt.Errorf("%w: %w", update.ErrConfigurationInvalid, err)}
	}

	response, err := u.client.Do(req)
	if err != nil {
		return nil, &update.UpdateError{Data: err.Error(), Err: fmt.Errorf("%w: %w", update.ErrStrategyExecution, err)}
	}

	defer func() {
		_ = response.Body.Close()
	}()

	if response.StatusCode != http.StatusOK {
		err = fmt.Errorf("%s, %s: %w", source, response.Status, errBadHTTPStatus)

		return nil, &update.UpdateError{Data: err.Error(), Err: err}
	}

	options := goupdate.Options{
		TargetPath: u.cfg.Path,
		TargetMode: binaryFileMode,
		Hash:       checksumFunction,
	}

	if u.cfg.Checksum != "" {
		options.Checksum, err = hex.DecodeString(u.cfg.Checksum)
		if err != nil {
			return nil, &update.UpdateError{Data: err.Error(), Err: fmt.Errorf("%w: %w", update.ErrConfigurationInvalid, err)}
		}
	}

	log(streamMessage, "Replacing "+u.cfg.Path)

	if err = goupdate.Apply(response.Body, options); err != nil {
		if rollbackErr := goupdate.RollbackError(err); rollbackErr != nil {
			log(streamMessage, "Rollback failed: "+rollbackErr.Error())
		}

		return nil, &update.UpdateError{Data: err.Error(), Err: fmt.Errorf("%w: %w", update.ErrStrategyExecution, err)}
	}

	// go-update keeps the previous executable next to the new one.
	_ = os.Remove(u.cfg.Path + ".old")

	return map[string]any{"path": u.cfg.Path, "version": targetVersion}, nil
}
