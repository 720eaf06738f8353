package game

// Resource is one of the tradeable goods plus currency.
type Resource string

const (
	ResourceFood         Resource = "food"
	ResourceRawMaterials Resource = "raw_materials"
	ResourceElectrical   Resource = "electrical_goods"
	ResourceMedical      Resource = "medical_goods"
	ResourceCurrency     Resource = "currency"
)

// TradeableResources are the resources the bank quotes prices for.
// Currency is the settlement medium and is never priced.
var TradeableResources = []Resource{
	ResourceFood,
	ResourceRawMaterials,
	ResourceElectrical,
	ResourceMedical,
}

// ValidResource reports whether r names a known resource.
func ValidResource(r Resource) bool {
	switch r {
	case ResourceFood, ResourceRawMaterials, ResourceElectrical, ResourceMedical, ResourceCurrency:
		return true
	}
	return false
}

// Building identifies a structure a team can own.
type Building string

const (
	// Production buildings generate resources on challenge completion.
	BuildingFarm              Building = "farm"
	BuildingMine              Building = "mine"
	BuildingElectricalFactory Building = "electrical_factory"
	BuildingMedicalFactory    Building = "medical_factory"

	// Mitigation buildings reduce disaster damage or tax pressure.
	BuildingSchool         Building = "school"
	BuildingHospital       Building = "hospital"
	BuildingRestaurant     Building = "restaurant"
	BuildingInfrastructure Building = "infrastructure"
)

// MaxBuildingCount caps each building type per team.
const MaxBuildingCount = 5

// AllBuildings lists every building type in a stable order.
var AllBuildings = []Building{
	BuildingFarm, BuildingMine, BuildingElectricalFactory, BuildingMedicalFactory,
	BuildingSchool, BuildingHospital, BuildingRestaurant, BuildingInfrastructure,
}

// ProductionBuildings in a stable order.
var ProductionBuildings = []Building{
	BuildingFarm, BuildingMine, BuildingElectricalFactory, BuildingMedicalFactory,
}

// FactoryBuildings are the buildings counted for the automation
// breakthrough target selection and bonus.
var FactoryBuildings = []Building{
	BuildingElectricalFactory, BuildingMedicalFactory,
}

// ValidBuilding reports whether b names a known building type.
func ValidBuilding(b Building) bool {
	for _, known := range AllBuildings {
		if b == known {
			return true
		}
	}
	return false
}

// Tier is a team's development stage; it selects the base tax amount.
type Tier string

const (
	TierSettlement Tier = "settlement"
	TierTown       Tier = "town"
	TierDeveloped  Tier = "developed"
)

// Team holds one team's resources and structures. All quantities are
// non-negative; mutations go through the helpers below so underflow is
// impossible.
type Team struct {
	ID        string           `json:"id"`
	Name      string           `json:"name"`
	Tier      Tier             `json:"tier"`
	Resources map[Resource]int `json:"resources"`
	Buildings map[Building]int `json:"buildings"`
}

// NewTeam returns a team with zeroed inventories.
func NewTeam(id, name string) *Team {
	return &Team{
		ID:        id,
		Name:      name,
		Tier:      TierSettlement,
		Resources: make(map[Resource]int),
		Buildings: make(map[Building]int),
	}
}

// Resource returns the quantity held of r.
func (t *Team) Resource(r Resource) int {
	return t.Resources[r]
}

// AddResource credits amount of r, clamping at zero on negative results.
func (t *Team) AddResource(r Resource, amount int) {
	next := t.Resources[r] + amount
	if next < 0 {
		next = 0
	}
	t.Resources[r] = next
}

// SpendResource debits amount of r, failing without mutation if the team
// cannot afford it.
func (t *Team) SpendResource(r Resource, amount int) bool {
	if amount < 0 || t.Resources[r] < amount {
		return false
	}
	t.Resources[r] -= amount
	return true
}

// BuildingCount returns how many of b the team owns.
func (t *Team) BuildingCount(b Building) int {
	return t.Buildings[b]
}

// AddBuilding increments b, honoring the per-type cap.
func (t *Team) AddBuilding(b Building) bool {
	if t.Buildings[b] >= MaxBuildingCount {
		return false
	}
	t.Buildings[b]++
	return true
}

// RemoveBuilding decrements b if any are standing.
func (t *Team) RemoveBuilding(b Building) bool {
	if t.Buildings[b] <= 0 {
		return false
	}
	t.Buildings[b]--
	return true
}

// TotalBuildings returns the team's standing structure count.
func (t *Team) TotalBuildings() int {
	total := 0
	for _, n := range t.Buildings {
		total += n
	}
	return total
}

// FactoryCount returns the combined factory count used by the automation
// breakthrough event.
func (t *Team) FactoryCount() int {
	total := 0
	for _, b := range FactoryBuildings {
		total += t.Buildings[b]
	}
	return total
}
