// Package config loads ingest configuration documents.
//
//	            +-------------+
//	            |   Config    |
//	            | blocks, var |
//	            +------+------+
//	                   |
//	   +--------+------+-----+--------+
//	   |        |            |        |
//	+--+---+ +--+---+   +----+--+ +---+--+
//	| TOML | | YAML |   | JSON  | | HCL  |
//	+------+ +------+   +-------+ +------+
//
// 🎯 Purpose:
// - Pick a parser from the file extension
// - Decode ingest blocks and the flat variable map
// - Reject unknown fields in every format
// - Fill defaults and validate before anything runs
//
// 📄 ingest.toml:
//
//	database = "ingest.db"
//	on_render_error = "fail"
//
//	[var]
//	root = "/srv/media"
//
//	[[ingest]]
//	name = "photos"
//	source = '{{ var.root }}/card/DCIM/.*\.(jpg|JPG)'
//	destination = 'photos/{{ formatdate("YYYY/MM", exif.DateTime) }}/{{ stat.name }}'
//	exclude = ["**/.thumbs/**"]
//
// 📄 ingest.hcl:
//
//	var = {
//	  root = "/srv/media"
//	}
//
//	ingest "photos" {
//	  source      = "{{ var.root }}/card/DCIM/.*\\.jpg"
//	  destination = "photos/{{ stat.name }}"
//	}
//
// Sources and destinations are templates; see package template.
package config
