package softwareupdate

import (
	"encoding/json"
	"errors"
	"fmt"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/oshokin/swupdate/internal/domain/update"
)

// Request is the document accepted by Check and Update.
type Request struct {
	Targets []string `json:"targets,omitempty"`
	Force   bool     `json:"force,omitempty"`
	Actor   *Actor   `json:"actor,omitempty"`
}

// Actor is the wire form of update.Actor.
type Actor struct {
	Hostname string `json:"hostname"`
	Username string `json:"username"`
}

// CheckResponse is the document returned by Check.
type CheckResponse struct {
	Status      string                  `json:"status"`
	Information map[string]TargetStatus `json:"information"`
}

// TargetStatus is the per-target entry of CheckResponse.
type TargetStatus struct {
	UpdateAvailable bool               `json:"updateAvailable"`
	UpdatePossible  bool               `json:"updatePossible"`
	Information     update.Information `json:"information"`
	DisplayName     string             `json:"displayName"`
	DisplayVersion  string             `json:"displayVersion"`
	Error           string             `json:"error,omitempty"`
}

// UpdateResponse is the document returned by Update.
type UpdateResponse struct {
	Order []string          `json:"order"`
	Names map[string]string `json:"names"`
}

// StatusResponse is the document returned by Status.
type StatusResponse struct {
	InProgress bool `json:"inProgress"`
}

// errNilDocument is returned when a nil document is decoded.
var errNilDocument = errors.New("document is required")

// Encode converts v into a Struct through its JSON form.
func Encode(v any) (*structpb.Struct, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal document: %w", err)
	}

	doc := new(structpb.Struct)
	if err = protojson.Unmarshal(raw, doc); err != nil {
		return nil, fmt.Errorf("convert document: %w", err)
	}

	return doc, nil
}

// Decode fills v from a Struct through its JSON form.
func Decode(doc *structpb.Struct, v any) error {
	if doc == nil {
		return errNilDocument
	}

	raw, err := protojson.Marshal(doc)
	if err != nil {
		return fmt.Errorf("convert document: %w", err)
	}

	if err = json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("unmarshal document: %w", err)
	}

	return nil
}

// ToDomain returns the domain form of the actor.
func (a *Actor) ToDomain() *update.Actor {
	if a == nil {
		return nil
	}

	return &update.Actor{
		Hostname: a.Hostname,
		Username: a.Username,
	}
}

// NewCheckResponse converts a check report into its wire form.
func NewCheckResponse(report *update.CheckReport) *CheckResponse {
	resp := &CheckResponse{Information: make(map[string]TargetStatus)}
	if report == nil {
		return resp
	}

	resp.Status = report.Status

	for name, ts := range report.Targets {
		entry := TargetStatus{
			UpdateAvailable: ts.Info.UpdateAvailable,
			UpdatePossible:  ts.Info.UpdatePossible,
			Information:     ts.Info.Information,
			DisplayName:     ts.DisplayName,
			DisplayVersion:  ts.DisplayVersion,
		}

		if ts.Err != nil {
			entry.Error = ts.Err.Error()
		}

		resp.Information[name] = entry
	}

	return resp
}

// ToDomain converts the wire form back into a check report.
func (r *CheckResponse) ToDomain() *update.CheckReport {
	report := &update.CheckReport{
		Status:  r.Status,
		Targets: make(map[string]update.TargetStatus, len(r.Information)),
	}

	for name, entry := range r.Information {
		ts := update.TargetStatus{
			DisplayName:    entry.DisplayName,
			DisplayVersion: entry.DisplayVersion,
			Info: update.VersionInfo{
				Information:     entry.Information,
				UpdateAvailable: entry.UpdateAvailable,
				UpdatePossible:  entry.UpdatePossible,
			},
		}

		if entry.Error != "" {
			ts.Err = errors.New(entry.Error) //nolint:err113 // Remote error text.
		}

		report.Targets[name] = ts
	}

	return report
}
