// Package forge evaluates formula-driven tabular models.
//
// A model is a set of named tables, each holding ordered columns of
// homogeneously typed values, plus standalone named scalars. Columns
// and scalars can be literal data or formulas in a spreadsheet-style
// dialect with arithmetic, comparisons, text concatenation, array
// literals, cross-table references, and a library of aggregation,
// conditional, lookup, financial, math, text, date, and logical
// functions.
//
// Models are written as YAML documents and parsed with Parse. Validate
// reports structural problems: unresolved references, reference
// cycles with the full cycle path, shape mismatches, and malformed
// criteria. Evaluate computes every formula in dependency order;
// runtime failures such as division by zero become error values in
// the affected cells while the rest of the model still computes.
// Export and Import translate models to and from xlsx workbooks, and
// Audit traces the dependency chain behind any computed node.
package forge
