// Copyright 2024 Canonical, Ltd.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package nginx synthesizes the reverse-proxy configuration from the
// aggregated worker topology. The document is built as a typed directive
// tree and rendered to nginx config-file syntax at the boundary.
package nginx

import (
	"strings"
)

// Directive is one nginx configuration directive, possibly with a nested
// block. A nil Block renders as a simple `name args;` statement.
type Directive struct {
	Name  string
	Args  []string
	Block []Directive
}

const indent = "    "

// Render serializes the directive tree to nginx configuration syntax.
func Render(directives []Directive) string {
	var b strings.Builder
	renderBlock(&b, directives, 0)
	return b.String()
}

func renderBlock(b *strings.Builder, directives []Directive, depth int) {
	prefix := strings.Repeat(indent, depth)
	for _, d := range directives {
		b.WriteString(prefix)
		b.WriteString(d.Name)
		if len(d.Args) > 0 {
			b.WriteString(" ")
			b.WriteString(strings.Join(d.Args, " "))
		}
		if d.Block == nil {
			b.WriteString(";\n")
			continue
		}
		b.WriteString(" {\n")
		renderBlock(b, d.Block, depth+1)
		b.WriteString(prefix)
		b.WriteString("}\n")
	}
}
