// Package task runs apply attempts in the background on a bounded worker
// pool, so submission is accepted immediately and completion is observed
// later through the mirror record. Unfinished records are recovered on start
// and swept periodically, so a lost run always ends as a terminal record.
package task
