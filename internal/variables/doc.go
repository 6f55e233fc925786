// Package variables merges variable scopes and expands `$NAME` references.
//
// Scopes merge from broadest to narrowest: group, project, run-time pipeline
// variables, global YAML variables, job variables, matching rule variables,
// matrix variables and finally the predefined CI_* variables of the job. A
// narrower scope replaces a broader one key by key. Group and project
// variables are first reduced to the most specific environment scope that
// matches the job's environment.
//
// Expansion replaces `$NAME` and `${NAME}` with values from the same merged
// collection. It runs two passes in declaration order, never re-scans a
// substituted value and leaves unknown names verbatim. Raw variables are
// neither expanded nor re-expanded where they are referenced.
package variables
