package main

import (
	"schoollib/internal/auth"
	"schoollib/internal/catalog"
	"schoollib/internal/membership"
)

func ptr[T any](v T) *T { return &v }

var seedUsers = []membership.NewUser{
	{Username: "admin", Email: "admin@ecole.fr", Password: "admin123", FullName: "Administrateur Système", Role: auth.RoleAdmin},
	{Username: "bibliothecaire", Email: "bibliothecaire@ecole.fr", Password: "biblio123", FullName: "Marie Dubois", Role: auth.RoleLibrarian},
	{Username: "prof_martin", Email: "martin@ecole.fr", Password: "prof123", FullName: "Jean Martin", Role: auth.RoleTeacher, ClassName: ptr("CM2-A")},
	{Username: "eleve_sophie", Email: "sophie@ecole.fr", Password: "eleve123", FullName: "Sophie Durand", Role: auth.RoleStudent, ClassName: ptr("CM2-A")},
	{Username: "eleve_pierre", Email: "pierre@ecole.fr", Password: "eleve123", FullName: "Pierre Moreau", Role: auth.RoleStudent, ClassName: ptr("CM1-B")},
}

var seedBooks = []catalog.NewBook{
	{
		Title: "Le Petit Prince", Authors: []string{"Antoine de Saint-Exupéry"},
		ISBN: ptr("978-2-07-040850-7"), Publisher: ptr("Gallimard"), Year: ptr(1943),
		Description: ptr("L'histoire d'un petit prince qui voyage de planète en planète."),
		Categories:  []string{"Fiction", "Jeunesse", "Classique"}, Tags: []string{"aventure", "philosophie", "enfance"},
		Location: ptr("Rayon A - Étage 1"), TotalCopies: 3,
	},
	{
		Title: "Harry Potter à l'école des sorciers", Authors: []string{"J.K. Rowling"},
		ISBN: ptr("978-2-07-054120-8"), Publisher: ptr("Gallimard Jeunesse"), Year: ptr(1997),
		Description: ptr("Un jeune garçon découvre qu'il est un sorcier le jour de ses 11 ans."),
		Categories:  []string{"Fantasy", "Jeunesse", "Aventure"}, Tags: []string{"magie", "école", "amitié"},
		Location: ptr("Rayon B - Étage 1"), TotalCopies: 5,
	},
	{
		Title: "Les Misérables", Authors: []string{"Victor Hugo"},
		ISBN: ptr("978-2-07-040987-0"), Publisher: ptr("Gallimard"), Year: ptr(1862),
		Description: ptr("Roman historique et social français du XIXe siècle."),
		Categories:  []string{"Classique", "Histoire", "Roman"}, Tags: []string{"histoire", "social", "France"},
		Location: ptr("Rayon C - Étage 2"), TotalCopies: 2,
	},
	{
		Title: "Le Tour du monde en 80 jours", Authors: []string{"Jules Verne"},
		ISBN: ptr("978-2-07-040123-2"), Publisher: ptr("Gallimard"), Year: ptr(1873),
		Description: ptr("Les aventures de Phileas Fogg dans son pari fou."),
		Categories:  []string{"Aventure", "Classique", "Voyage"}, Tags: []string{"voyage", "aventure", "pari"},
		Location: ptr("Rayon A - Étage 2"), TotalCopies: 4,
	},
	{
		Title: "L'Étranger", Authors: []string{"Albert Camus"},
		ISBN: ptr("978-2-07-040004-4"), Publisher: ptr("Gallimard"), Year: ptr(1942),
		Description: ptr("Roman existentialiste sur l'absurdité de la condition humaine."),
		Categories:  []string{"Philosophie", "Littérature", "Classique"}, Tags: []string{"existentialisme", "philosophie", "absurde"},
		Location: ptr("Rayon D - Étage 2"), TotalCopies: 2,
	},
	{
		Title: "Le Journal d'Anne Frank", Authors: []string{"Anne Frank"},
		ISBN: ptr("978-2-253-00395-1"), Publisher: ptr("Le Livre de Poche"), Year: ptr(1947),
		Description: ptr("Le témoignage d'une adolescente pendant la Seconde Guerre mondiale."),
		Categories:  []string{"Histoire", "Biographie", "Témoignage"}, Tags: []string{"guerre", "témoignage"},
		Location: ptr("Rayon C - Étage 1"), TotalCopies: 4,
	},
	{
		Title: "1984", Authors: []string{"George Orwell"},
		ISBN: ptr("978-2-07-036822-5"), Publisher: ptr("Gallimard"), Year: ptr(1949),
		Description: ptr("Une dystopie sur la surveillance et le totalitarisme."),
		Categories:  []string{"Science-Fiction", "Dystopie", "Politique"}, Tags: []string{"dystopie", "surveillance", "liberté"},
		Location: ptr("Rayon D - Étage 1"), TotalCopies: 3,
	},
}
