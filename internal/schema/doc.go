// Package schema describes the shape of a collection as a plain data tree.
//
// A schema is a RecordType whose fields are RegisterType (a scalar
// last-writer-wins cell), SetType (string or number elements) or a nested
// RecordType. Definitions group collections under a monotonic version and
// travel as data through the schemacodec package.
//
// Nothing here is process global: date formats and named default
// generators are carried by a Config passed to the functions that need
// them.
package schema
