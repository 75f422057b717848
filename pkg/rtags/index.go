package rtags

// SymbolRecord is a single declaration the extractor found while indexing a
// Unit: the row-level shape the symbol store's symbols table is built from.
type SymbolRecord struct {
	Name   string
	Kind   string
	File   string
	Line   int
	Column int
	IsDef  bool
}

// ReferenceRecord is a single use of a symbol elsewhere in the Unit: the
// row-level shape the symbol store's refs table is built from. SymbolName
// is resolved against IndexData.Symbols at commit time, not carried as a
// foreign key, since the extractor never sees the store's row ids.
type ReferenceRecord struct {
	SymbolName string
	File       string
	Line       int
	Column     int
}

// IndexData is the extractor's structured result for one Unit: gob-encoded
// into IndexerMessage.Symbols so the commit step can decode it back without
// either side importing the other's package.
type IndexData struct {
	Symbols    []SymbolRecord
	References []ReferenceRecord
}
