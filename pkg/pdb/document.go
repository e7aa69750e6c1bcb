package pdb

import "github.com/Dmdv/cecil/pkg/metadata"

// The document identity GUIDs are fixed by the Portable PDB specification.
// Each enumeration maps bijectively onto its well-known constants; the
// mapping tables are built once at package init and never mutated, so no
// locking is needed. An unknown GUID decodes to the Other/None sentinel,
// never an error; an enumerant with no representation encodes to the
// all-zero GUID, which callers must treat as absent.

// Language is the source language of a document.
type Language uint8

const (
	LanguageOther Language = iota
	LanguageCSharp
	LanguageVisualBasic
	LanguageFSharp
)

// HashAlgorithm is the checksum algorithm of a document's Hash blob.
type HashAlgorithm uint8

const (
	HashNone HashAlgorithm = iota
	HashMD5
	HashSHA1
	HashSHA256
)

// DocumentType distinguishes text documents from other document kinds.
type DocumentType uint8

const (
	TypeOther DocumentType = iota
	TypeText
)

// Vendor is the tool vendor of a document's language.
type Vendor uint8

const (
	VendorOther Vendor = iota
	VendorMicrosoft
)

func mustGUID(s string) metadata.GUID {
	g, err := metadata.GUIDFromString(s)
	if err != nil {
		panic(err)
	}
	return g
}

var (
	languageGuids = map[Language]metadata.GUID{
		LanguageCSharp:      mustGUID("3f5162f8-07c6-11d3-9053-00c04fa302a1"),
		LanguageVisualBasic: mustGUID("3a12d0b8-c26c-11d0-b442-00a0244a1dd2"),
		LanguageFSharp:      mustGUID("ab4f38c9-b6e6-43ba-be3b-58080b2ccce3"),
	}
	hashAlgorithmGuids = map[HashAlgorithm]metadata.GUID{
		HashMD5:    mustGUID("406ea660-64cf-4c82-b6f0-42d48172a799"),
		HashSHA1:   mustGUID("ff1816ec-aa5e-4d10-87f7-6f4963833460"),
		HashSHA256: mustGUID("8829d00f-11b8-4213-878b-770e8597ac16"),
	}
	documentTypeGuids = map[DocumentType]metadata.GUID{
		TypeText: mustGUID("5a869d0b-6611-11d3-bd2a-0000f80849bd"),
	}
	vendorGuids = map[Vendor]metadata.GUID{
		VendorMicrosoft: mustGUID("994b45c4-e6e9-11d2-903f-00c04fa302a1"),
	}

	guidLanguages      map[metadata.GUID]Language
	guidHashAlgorithms map[metadata.GUID]HashAlgorithm
	guidDocumentTypes  map[metadata.GUID]DocumentType
	guidVendors        map[metadata.GUID]Vendor
)

func init() {
	guidLanguages = make(map[metadata.GUID]Language, len(languageGuids))
	for k, v := range languageGuids {
		guidLanguages[v] = k
	}
	guidHashAlgorithms = make(map[metadata.GUID]HashAlgorithm, len(hashAlgorithmGuids))
	for k, v := range hashAlgorithmGuids {
		guidHashAlgorithms[v] = k
	}
	guidDocumentTypes = make(map[metadata.GUID]DocumentType, len(documentTypeGuids))
	for k, v := range documentTypeGuids {
		guidDocumentTypes[v] = k
	}
	guidVendors = make(map[metadata.GUID]Vendor, len(vendorGuids))
	for k, v := range vendorGuids {
		guidVendors[v] = k
	}
}

// GUID returns the well-known GUID of the language, or the zero GUID when
// the enumerant has no representation.
func (l Language) GUID() metadata.GUID { return languageGuids[l] }

// LanguageFromGUID decodes a language GUID; unknown GUIDs yield
// LanguageOther.
func LanguageFromGUID(g metadata.GUID) Language { return guidLanguages[g] }

// GUID returns the well-known GUID of the hash algorithm, or the zero GUID
// when the enumerant has no representation.
func (h HashAlgorithm) GUID() metadata.GUID { return hashAlgorithmGuids[h] }

// HashAlgorithmFromGUID decodes a hash algorithm GUID; unknown GUIDs yield
// HashNone.
func HashAlgorithmFromGUID(g metadata.GUID) HashAlgorithm { return guidHashAlgorithms[g] }

// GUID returns the well-known GUID of the document type, or the zero GUID
// when the enumerant has no representation.
func (t DocumentType) GUID() metadata.GUID { return documentTypeGuids[t] }

// DocumentTypeFromGUID decodes a document type GUID; unknown GUIDs yield
// TypeOther.
func DocumentTypeFromGUID(g metadata.GUID) DocumentType { return guidDocumentTypes[g] }

// GUID returns the well-known GUID of the vendor, or the zero GUID when the
// enumerant has no representation.
func (v Vendor) GUID() metadata.GUID { return vendorGuids[v] }

// VendorFromGUID decodes a vendor GUID; unknown GUIDs yield VendorOther.
func VendorFromGUID(g metadata.GUID) Vendor { return guidVendors[g] }
