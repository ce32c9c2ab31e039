// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package target adapts an on-disk C/C++ build to the tuner interfaces.
//
// SourceFile rewrites the cutoff literal in a source file, and Command runs
// the build and benchmark commands with a timeout and bounded output capture.
package target
