// Copyright 2025 Cloudbase Solutions SRL
//
//    Licensed under the Apache License, Version 2.0 (the "License"); you may
//    not use this file except in compliance with the License. You may obtain
//    a copy of the License at
//
//         http://www.apache.org/licenses/LICENSE-2.0
//
//    Unless required by applicable law or agreed to in writing, software
//    distributed under the License is distributed on an "AS IS" BASIS, WITHOUT
//    WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied. See the
//    License for the specific language governing permissions and limitations
//    under the License.

// Package analytics builds parameterized SQL for the analytics query
// engine. Every public builder returns SQL text plus a parallel bound-value
// slice; no user-provided string is ever interpolated directly into a
// query. Literal SQL is used for exactly three things: column names (off
// the PropertyColumn allow-list), GROUP BY targets, and the four interval
// literals ('1 hour', '1 day', '1 week', '1 month').
package analytics

import (
	"fmt"
	"strings"
)

// WhereBuilder accumulates an ordered list of predicates and a parallel
// list of bound values, tracking the next placeholder index so predicates
// can be appended incrementally without the caller doing index arithmetic.
type WhereBuilder struct {
	conditions []string
	args       []interface{}
}

// NewWhereBuilder starts a builder whose running param_index begins at
// len(seed)+1, for composing a WHERE clause onto a query that already has
// bound values ahead of it (e.g. a CTE's own positional parameters).
func NewWhereBuilder(seed ...interface{}) *WhereBuilder {
	return &WhereBuilder{args: append([]interface{}{}, seed...)}
}

func (b *WhereBuilder) nextIndex() int {
	return len(b.args) + 1
}

// Placeholder returns the next unused "$n" placeholder without binding a
// value, for embedding in a LIMIT clause or similar.
func (b *WhereBuilder) Placeholder() string {
	return fmt.Sprintf("$%d", b.nextIndex())
}

// Bind appends value to the bound-value list and returns its placeholder,
// without adding a predicate. Used for values referenced outside the WHERE
// clause, like a LIMIT.
func (b *WhereBuilder) Bind(value interface{}) string {
	ph := b.Placeholder()
	b.args = append(b.args, value)
	return ph
}

// Eq appends "<column> = $n" bound to value.
func (b *WhereBuilder) Eq(column string, value interface{}) *WhereBuilder {
	ph := b.Bind(value)
	b.conditions = append(b.conditions, fmt.Sprintf("%s = %s", column, ph))
	return b
}

// Gte appends "<column> >= $n" bound to value.
func (b *WhereBuilder) Gte(column string, value interface{}) *WhereBuilder {
	ph := b.Bind(value)
	b.conditions = append(b.conditions, fmt.Sprintf("%s >= %s", column, ph))
	return b
}

// Lt appends "<column> < $n" bound to value.
func (b *WhereBuilder) Lt(column string, value interface{}) *WhereBuilder {
	ph := b.Bind(value)
	b.conditions = append(b.conditions, fmt.Sprintf("%s < %s", column, ph))
	return b
}

// Lte appends "<column> <= $n" bound to value.
func (b *WhereBuilder) Lte(column string, value interface{}) *WhereBuilder {
	ph := b.Bind(value)
	b.conditions = append(b.conditions, fmt.Sprintf("%s <= %s", column, ph))
	return b
}

// Raw appends a predicate with no bound value, for literal-only fragments
// such as "session_id IS NOT NULL".
func (b *WhereBuilder) Raw(condition string) *WhereBuilder {
	b.conditions = append(b.conditions, condition)
	return b
}

// EqIfNotNil appends an Eq predicate only when value is non-nil, dereferencing
// pointer-typed optional filters (environment_id, deployment_id, ...).
func (b *WhereBuilder) EqIfNotNil(column string, value interface{}) *WhereBuilder {
	switch v := value.(type) {
	case *int:
		if v != nil {
			b.Eq(column, *v)
		}
	case *int32:
		if v != nil {
			b.Eq(column, *v)
		}
	case *int64:
		if v != nil {
			b.Eq(column, *v)
		}
	case *string:
		if v != nil {
			b.Eq(column, *v)
		}
	}
	return b
}

// Clause joins the accumulated conditions with AND. Returns "TRUE" when
// empty so callers can always embed the result after WHERE.
func (b *WhereBuilder) Clause() string {
	if len(b.conditions) == 0 {
		return "TRUE"
	}
	return strings.Join(b.conditions, " AND ")
}

// Args returns the bound-value list in placeholder order.
func (b *WhereBuilder) Args() []interface{} {
	return b.args
}

// ParamCount returns how many values have been bound so far, which is also
// the number of the last placeholder used.
func (b *WhereBuilder) ParamCount() int {
	return len(b.args)
}
