package engine

// VolumeID identifies a volume returned by Engine.AddVolume. Stringifies
// as "{index:version}" per §6.
type VolumeID struct{ id slotID }

func (v VolumeID) String() string { return v.id.String() }

// ViewerID identifies a viewer returned by Engine.AddViewer.
type ViewerID struct{ id slotID }

func (v ViewerID) String() string { return v.id.String() }
