package migration

import "errors"

// ErrInvalidChangelog indicates the changelog document is structurally invalid.
var ErrInvalidChangelog = errors.New("invalid changelog")

// ErrUnknownChangeKind indicates a change mapping names an unsupported operation.
var ErrUnknownChangeKind = errors.New("unknown change kind")

// ErrDuplicateChangeSet indicates two ChangeSets share the same (id, author).
var ErrDuplicateChangeSet = errors.New("duplicate changeset")

// ErrUnsupportedFormat indicates the changelog file extension is not recognized.
var ErrUnsupportedFormat = errors.New("unsupported changelog format (use .yaml, .yml or .json)")
