// Package store defines persistence contracts for serialized setting
// containers, plus a Repository that moves containers in and out of a Store.
//
// Responsibilities:
//   - Store only loads and saves one serialized document for one Ref.
//   - Repository serializes containers on save, deserializes them on restore
//     and enforces optimistic concurrency through Meta.ETag.
//   - The settings package stays persistence-agnostic; storage backends are
//     supplied by consumers.
//
// Data flow:
//
//	Container.Serialize -> Repository.Save -> Store.Save
//	Store.Load -> Repository.Restore -> Container.Deserialize
//
// Deterministic keys:
//
//	Ref.Identifier() returns "<kind>/<id>", for example "stack/global" or
//	"instance/user_overrides".
package store
