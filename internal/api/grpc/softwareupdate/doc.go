// Package softwareupdate implements the gRPC transport for the update service.
//
// The service exchanges google.protobuf.Struct documents, so the descriptor and
// client stubs are declared here instead of being generated. Documents are
// converted to domain types through their JSON form.
package softwareupdate
