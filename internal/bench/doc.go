// Package bench drives topic/partition benchmark workloads against a log
// store.
//
// Topics and partitions are a naming convention over the flat key space:
// partition p of topic T is the key "T/p". Creating a topic records the
// intended partition count and nothing else; keys come into existence on
// first append. Producers route messages to partition keys and append,
// framing each one with a sortable 16-byte message ID; consumers run one
// polling goroutine per partition, each with its own cursor, delivering
// messages in sequence order within a partition and with no ordering
// guarantee across partitions.
package bench
