// SPDX-License-Identifier: MIT

package log

// Canonical field name constants for structured logging.
const (
	// Identity fields
	FieldRequestID = "request_id"
	FieldRunID     = "run_id"
	FieldWebsiteID = "website_id"

	// Process fields
	FieldEvent     = "event"
	FieldComponent = "component"

	// Crawl fields
	FieldURL       = "url"
	FieldSourceURL = "source_url"
	FieldBaseURL   = "base_url"
	FieldMediaType = "media_type"
	FieldStatus    = "status"
	FieldAttempt   = "attempt"

	// Path fields
	FieldPath         = "path"
	FieldSnapshotPath = "snapshot_path"
)
