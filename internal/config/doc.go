// Package config loads the lorekeeper YAML configuration.
//
// A minimal file:
//
//	db_path: ~/.lorekeeper/index.db
//	index_dir: ~/.lorekeeper/vectors
//	embedding:
//	  provider: openai
//	corpora:
//	  code:
//	    kind: jsonl
//	    root: extract/code.jsonl
//	  gamedata:
//	    root: Server
//	    extensions: [.json]
//	  client:
//	    root: Client/UI
//	    extensions: [.ui, .xml]
//	  docs:
//	    root: docs
//	    extensions: [.md]
//
// Relative roots are resolved against the directory of the config file.
// LOREKEEPER_* environment variables override file values.
package config
