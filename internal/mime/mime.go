/*
 * Copyright (c) 2026 Firefly Software Solutions Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package mime maps file names to content types by extension.
package mime

import "strings"

// DefaultType is returned for unknown or missing extensions.
const DefaultType = "text/plain"

// types is matched case-sensitively against the text after the last dot.
var types = map[string]string{
	"html": "text/html",
	"htm":  "text/html",
	"jpeg": "image/jpeg",
	"jpg":  "image/jpeg",
}

// TypeByFilename returns the content type for name. Only the text after the
// final '.' is considered.
func TypeByFilename(name string) string {
	dot := strings.LastIndexByte(name, '.')
	if dot < 0 {
		return DefaultType
	}
	if t, ok := types[name[dot+1:]]; ok {
		return t
	}
	return DefaultType
}
