package migration

import (
	"errors"
	"fmt"
	"sync"
)

const duplicateMappingErrorTemplateConstant = "conflicting destination identifiers for %s %d: %d and %d"

var errConflictingIdentifierMapping = errors.New("identifier mapping already recorded with a different destination")

// IdentifierLookup is the read-only view of the identifier map handed to
// migration strategies.
type IdentifierLookup interface {
	// Resolve translates a source identifier into the destination's
	// identifier space. The second return reports whether a mapping exists.
	Resolve(entityKind EntityKind, sourceIdentifier int64) (int64, bool)
}

type identifierMapKey struct {
	entityKind       EntityKind
	sourceIdentifier int64
}

// IdentifierMap translates source-side identifiers to destination-side
// identifiers, one entry per (kind, source id) pair. Entries are append-only
// for the lifetime of a run; re-recording the same pair with a different
// destination is rejected.
type IdentifierMap struct {
	mutex   sync.RWMutex
	entries map[identifierMapKey]int64
}

// NewIdentifierMap constructs an empty identifier map.
func NewIdentifierMap() *IdentifierMap {
	return &IdentifierMap{entries: map[identifierMapKey]int64{}}
}

// Record stores the translation for one entity. Recording the identical
// translation twice is a no-op.
func (identifierMap *IdentifierMap) Record(entityKind EntityKind, sourceIdentifier int64, destinationIdentifier int64) error {
	identifierMap.mutex.Lock()
	defer identifierMap.mutex.Unlock()

	mapKey := identifierMapKey{entityKind: entityKind, sourceIdentifier: sourceIdentifier}
	if existingDestination, alreadyRecorded := identifierMap.entries[mapKey]; alreadyRecorded {
		if existingDestination == destinationIdentifier {
			return nil
		}
		return fmt.Errorf(
			duplicateMappingErrorTemplateConstant+": %w",
			entityKind, sourceIdentifier, existingDestination, destinationIdentifier,
			errConflictingIdentifierMapping,
		)
	}

	identifierMap.entries[mapKey] = destinationIdentifier
	return nil
}

// Resolve implements IdentifierLookup.
func (identifierMap *IdentifierMap) Resolve(entityKind EntityKind, sourceIdentifier int64) (int64, bool) {
	identifierMap.mutex.RLock()
	defer identifierMap.mutex.RUnlock()

	destinationIdentifier, mappingExists := identifierMap.entries[identifierMapKey{entityKind: entityKind, sourceIdentifier: sourceIdentifier}]
	return destinationIdentifier, mappingExists
}

// Size reports the number of recorded translations.
func (identifierMap *IdentifierMap) Size() int {
	identifierMap.mutex.RLock()
	defer identifierMap.mutex.RUnlock()
	return len(identifierMap.entries)
}
