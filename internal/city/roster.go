package city

// Profile describes an agent to be seeded into the city.
type Profile struct {
	Name        string `yaml:"name"`
	Profession  string `yaml:"profession"`
	Personality string `yaml:"personality"`
}

// DefaultRoster is the starting population.
func DefaultRoster() []Profile {
	return []Profile{
		{Name: "Anna", Profession: "Barista", Personality: "friendly, talkative, optimistic"},
		{Name: "Pyotr", Profession: "Police officer", Personality: "strict, fair, serious"},
		{Name: "Olya", Profession: "Journalist", Personality: "curious, ambitious, a little dramatic"},
		{Name: "Igor", Profession: "Taxi driver", Personality: "joker, practical, observant"},
		{Name: "Maria", Profession: "Teacher", Personality: "patient, caring"},
		{Name: "Sergei", Profession: "Programmer", Personality: "modest, analytical, loves coffee"},
		{Name: "Lena", Profession: "Doctor", Personality: "serious, empathetic"},
		{Name: "Dmitri", Profession: "Mechanic", Personality: "handy, a bit grumpy"},
		{Name: "Irina", Profession: "Artist", Personality: "romantic, creative"},
		{Name: "Nikolai", Profession: "Salesman", Personality: "perceptive, cunning"},
		{Name: "Viktoria", Profession: "Student", Personality: "energetic, social-media minded"},
		{Name: "Alexei", Profession: "Baker", Personality: "warm, hospitable"},
		{Name: "Galina", Profession: "Pensioner", Personality: "grumpy, wise"},
	}
}

// Well-known location names the action rules depend on.
const (
	LocationHome        = "home"
	LocationShop        = "shop"
	LocationWork        = "work"
	LocationPark        = "park"
	LocationMayorOffice = "mayor_office"
)

// DefaultLocations is the starting city map.
func DefaultLocations() []Location {
	return []Location{
		{Name: LocationHome, XMin: 0, XMax: 200, YMin: 0, YMax: 200},
		{Name: LocationShop, XMin: 200, XMax: 400, YMin: 200, YMax: 400},
		{Name: LocationWork, XMin: 400, XMax: 600, YMin: 0, YMax: 200},
		{Name: LocationPark, XMin: 600, XMax: 800, YMin: 200, YMax: 400},
		{Name: LocationMayorOffice, XMin: 0, XMax: 200, YMin: 200, YMax: 400},
	}
}
