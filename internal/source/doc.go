// Package source produces the chunks each corpus is indexed from.
//
// FileSource walks a directory: every matching file becomes one chunk whose
// id is "{corpus}:{relative path}". Game data records are embedded as
// flattened "Path: value" lines, UI markup as its attribute values, and
// markdown as plain text titled by its first heading.
//
// JSONLSource reads chunks produced by an external extractor, one JSON
// object per line. Chunks keep the ids the extractor gave them.
//
// A change to how embedding texts are built must bump TextBuilderVersion.
package source
