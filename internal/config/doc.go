// Package config loads and watches the hoptoad-flush configuration file.
//
// Load(path) reads the YAML file, applies defaults (environment "default",
// the public collector endpoint, one-minute flush interval), then validates
// required fields. The API key is never stored in the file: api_key_env
// names the environment variable that holds it.
//
// Watch(ctx, path, onChange) uses fsnotify to detect file changes and calls
// onChange with the newly parsed Config. A reload that fails to parse or
// validate is logged and the previous Config stays active.
package config
