/*
Package status tracks per-file outcomes and byte progress for an ingest run.

	+-----------+        +-------------+
	| operation | -----> |   Manager   |
	+-----------+        +------+------+
	                            |
	           +----------------+---------------+
	           |                                |
	     +-----+------+                  +------+------+
	     |  Progress  |                  |  Formatter  |
	     | (pterm bar)|                  | (log lines) |
	     +------------+                  +-------------+

🎯 Purpose:
  - Record what happened to each pending source file
  - Show copy progress in bytes, shrinking the total as files are skipped
  - Summarise a run for the user

📝 Outcomes:
  - copied: written to its destination and recorded
  - exists: destination already present with the same size
  - conflict: destination present with a different size, never overwritten
  - failed: destination could not be rendered or the copy failed
  - planned: dry run only
*/
package status
