// Package render rasterises card documents into 1200x630 PNG images.
//
// # Documents
//
// A document is TOML with a [canvas] table and an ordered list of
// [[element]] tables. Elements are painted in order:
//
//	[canvas]
//	background = "#14161b"
//
//	[[element]]
//	kind = "text"          # rect, text or avatars
//	text = "serde"
//	font = "bold"          # a family from pkg/fonts
//	size = 88
//	x = 80
//	y = 90                 # top of the first line
//	width = 1040
//	max_lines = 1
//
// Unknown keys, unknown kinds and invalid colors are compile errors
// (RENDER_COMPILE); an unknown font family is a resource error
// (RENDER_RESOURCE). The output size is fixed no matter what the document
// says.
//
// # Concurrency
//
// Rasterisation is CPU bound. [Renderer] admits at most Workers compiles
// at a time through a weighted semaphore; excess callers wait for a slot
// while honouring their context.
package render
