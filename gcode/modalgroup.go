package gcode

type ModalGroup byte

// Groups a Grbl controller understands; everything else is ModalGroupNone.
const (
	ModalGroupNone ModalGroup = iota
	ModalGroupNonModal
	ModalGroupMotion
	ModalGroupPlaneSelection
	ModalGroupDistanceMode
	ModalGroupArcDistanceMode
	ModalGroupFeedRateMode
	ModalGroupUnits
	ModalGroupCutterCompensationMode
	ModalGroupToolLength
	ModalGroupCoordinateSystem
	ModalGroupControlMode
	ModalGroupStopping
	ModalGroupSpindle
	ModalGroupCoolant
)

func (w Word) ModalGroup() ModalGroup {
	switch w.W {
	case 'G':
		switch w.Arg {
		case 4, 10, 28, 28.1, 30, 30.1, 53, 92, 92.1:
			return ModalGroupNonModal
		case 0, 1, 2, 3, 38.2, 38.3, 38.4, 38.5, 80:
			return ModalGroupMotion
		case 17, 18, 19:
			return ModalGroupPlaneSelection
		case 90, 91:
			return ModalGroupDistanceMode
		case 91.1:
			return ModalGroupArcDistanceMode
		case 93, 94:
			return ModalGroupFeedRateMode
		case 20, 21:
			return ModalGroupUnits
		case 40:
			return ModalGroupCutterCompensationMode
		case 43.1, 49:
			return ModalGroupToolLength
		case 54, 55, 56, 57, 58, 59:
			return ModalGroupCoordinateSystem
		case 61:
			return ModalGroupControlMode
		}
	case 'M':
		switch w.Arg {
		case 0, 1, 2, 30:
			return ModalGroupStopping
		case 3, 4, 5:
			return ModalGroupSpindle
		case 7, 8, 9:
			return ModalGroupCoolant
		}
	}

	return ModalGroupNone
}
