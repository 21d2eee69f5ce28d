// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package validation provides input validation utilities for values that
// arrive as URL path segments (report_name, local_id) and are later used
// to build log lines, metric labels, and browser-launch URLs.
package validation

import (
	"fmt"
	"regexp"
	"strings"
)

// reportNamePattern matches a human-meaningful report handle: letters,
// digits, dots, hyphens, underscores, and forward slashes (for a
// file-path-shaped name like "pages/overview"). Disallows the raw
// characters a percent-decoded path segment could still carry that would
// break URL construction (control chars, spaces). The pattern itself
// admits "..", which ValidateReportName rejects separately.
var reportNamePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._/-]{0,127}$`)

// localIDPattern matches the local process identifier a producer embeds
// in its connection URL: same shape as a report name but without slashes,
// since it is never treated as a file-path-like hierarchy.
var localIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,63}$`)

// ValidateReportName validates a percent-decoded report_name path segment.
//
// Returns an error if the name is empty, too long, contains a ".." path
// traversal component, or contains characters outside the allowed set.
func ValidateReportName(name string) error {
	if name == "" {
		return fmt.Errorf("report name cannot be empty")
	}
	if strings.Contains(name, "..") {
		return fmt.Errorf("invalid report name %q: must not contain \"..\"", name)
	}
	if !reportNamePattern.MatchString(name) {
		return fmt.Errorf("invalid report name %q: must be 1-128 chars of letters, digits, '.', '_', '-', '/'", name)
	}
	return nil
}

// ValidateLocalID validates a percent-decoded local_id path segment.
func ValidateLocalID(id string) error {
	if id == "" {
		return fmt.Errorf("local id cannot be empty")
	}
	if !localIDPattern.MatchString(id) {
		return fmt.Errorf("invalid local id %q: must be 1-64 chars of letters, digits, '.', '_', '-'", id)
	}
	return nil
}
