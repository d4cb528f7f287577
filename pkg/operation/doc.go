/*
Package operation runs the ingest pipeline.

	+---------+     +--------+     +--------+     +------+     +--------+
	| Gather  | --> | Filter | --> | Render | --> | Copy | --> | Record |
	| (match) |     | (state)|     | (tmpl) |     |      |     | (state)|
	+---------+     +--------+     +--------+     +------+     +--------+

🔄 Flow:
 1. Gather renders each block's source against var, walks it with the
    source matcher and pairs every file with the last block that matched it
 2. Filter drops files whose (block, source, size, mtime) is already recorded
 3. Each remaining file gets a metadata context and its destination rendered
 4. Existing destinations are skipped, equal size quietly and different
    size with a warning; nothing is ever overwritten
 5. New destinations are streamed through a temporary file, hashed, renamed
    into place and recorded

⚠️ Errors:
  - render failures follow the configured policy and never abort the run
  - copy and store failures abort the run; a file is recorded only after its
    destination is complete

🔍 Example:

	op, err := operation.New(operation.Options{Config: cfg, Store: store})
	if err != nil {
		return err
	}
	summary, err := op.Run(ctx)
*/
package operation
